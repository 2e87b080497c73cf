package resize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/samsaffron/sizesync/internal/imaging"
)

// sizeCodec is a fake codec whose encoded size is a function of the frame
// dimensions and quality, so the search policy can be checked exactly.
type sizeCodec struct {
	size    func(w, h, q int) int
	encodes []int // quality of each encode
	fail    error
}

func (c *sizeCodec) Decode([]byte) (*imaging.Image, error) { return nil, errors.New("unused") }

func (c *sizeCodec) Resize(img *imaging.Image, w, h int) (*imaging.Image, error) {
	return &imaging.Image{Width: w, Height: h, Mode: img.Mode}, nil
}

func (c *sizeCodec) Encode(img *imaging.Image, _ imaging.Format, q int) ([]byte, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	c.encodes = append(c.encodes, q)
	return make([]byte, c.size(img.Width, img.Height, q)), nil
}

func areaQuality(w, h, q int) int { return w * h * q / 100 }

func TestSearchRejectsNonPositiveBudget(t *testing.T) {
	codec := &sizeCodec{size: areaQuality}
	s := NewSearcher(codec)
	src := &imaging.Image{Width: 10, Height: 10, Mode: imaging.ModeRGB}

	for _, budget := range []int{0, -1} {
		res, err := s.Search(context.Background(), src, budget)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if res.Found || res.Reason != ReasonInvalidBudget {
			t.Errorf("budget %d: got %+v, want invalid budget failure", budget, res)
		}
	}
	if len(codec.encodes) != 0 {
		t.Errorf("expected no encodes, got %d", len(codec.encodes))
	}
}

func TestSearchUnderBudgetStillEncodesOnce(t *testing.T) {
	codec := &sizeCodec{size: areaQuality}
	s := NewSearcher(codec)
	src := &imaging.Image{Width: 10, Height: 10, Mode: imaging.ModeRGB}

	res, err := s.Search(context.Background(), src, 1<<20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found || res.Iterations != 1 || res.Quality != 95 || res.Width != 10 || res.Height != 10 {
		t.Fatalf("got %+v, want first attempt at full scale q95", res)
	}
	if len(res.Data) != 95 {
		t.Errorf("len(data) = %d, want 95", len(res.Data))
	}
}

func TestSearchModerateOvershootLowersQuality(t *testing.T) {
	codec := &sizeCodec{size: areaQuality}
	s := NewSearcher(codec)
	src := &imaging.Image{Width: 100, Height: 100, Mode: imaging.ModeRGB}

	// q95 -> 9500 bytes, within 1.5x of 9000, so only quality drops.
	res, err := s.Search(context.Background(), src, 9000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found || res.Quality != 90 || res.Width != 100 || res.Iterations != 2 {
		t.Fatalf("got %+v, want 100x100 q90 after 2 iterations", res)
	}
}

func TestSearchLargeOvershootShrinksThenTunesQuality(t *testing.T) {
	codec := &sizeCodec{size: areaQuality}
	var trace []Attempt
	s := NewSearcher(codec)
	s.Trace = func(a Attempt) { trace = append(trace, a) }
	src := &imaging.Image{Width: 100, Height: 100, Mode: imaging.ModeRGB}

	res, err := s.Search(context.Background(), src, 5000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Width != 80 || res.Height != 80 || res.Quality != 75 || res.Iterations != 6 {
		t.Errorf("got %dx%d q%d after %d iterations, want 80x80 q75 after 6",
			res.Width, res.Height, res.Quality, res.Iterations)
	}
	if len(res.Data) > 5000 {
		t.Errorf("len(data) = %d exceeds budget", len(res.Data))
	}

	wantNext := []Adjustment{AdjustScale, AdjustQuality, AdjustQuality, AdjustQuality, AdjustQuality, AdjustNone}
	if len(trace) != len(wantNext) {
		t.Fatalf("trace has %d attempts, want %d", len(trace), len(wantNext))
	}
	for i, a := range trace {
		if a.Next != wantNext[i] {
			t.Errorf("attempt %d next = %v, want %v", i+1, a.Next, wantNext[i])
		}
	}
	assertOneAxisPerStep(t, trace)
}

func TestSearchQualityFloor(t *testing.T) {
	// Always just over budget: only quality moves, until it drops below 10.
	codec := &sizeCodec{size: func(w, h, q int) int { return 1001 }}
	s := NewSearcher(codec)
	src := &imaging.Image{Width: 50, Height: 50, Mode: imaging.ModeRGB}

	res, err := s.Search(context.Background(), src, 1000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Found || res.Reason != ReasonQualityFloor {
		t.Fatalf("got %+v, want quality floor failure", res)
	}
	// 95, 90, ..., 10 is 18 encodes; nothing is encoded below the floor.
	if len(codec.encodes) != 18 || res.Iterations != 18 {
		t.Errorf("encodes = %d, iterations = %d; want 18", len(codec.encodes), res.Iterations)
	}
	for _, q := range codec.encodes {
		if q < DefaultMinQuality {
			t.Errorf("encoded at quality %d below the floor", q)
		}
	}
}

func TestSearchDegenerateDimensions(t *testing.T) {
	codec := &sizeCodec{size: func(w, h, q int) int { return 1 << 20 }}
	s := NewSearcher(codec)
	src := &imaging.Image{Width: 1, Height: 3, Mode: imaging.ModeRGB}

	res, err := s.Search(context.Background(), src, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Found || res.Reason != ReasonDegenerate || res.Iterations != 1 {
		t.Fatalf("got %+v, want degenerate failure after 1 iteration", res)
	}
}

func TestSearchIterationCap(t *testing.T) {
	codec := &sizeCodec{size: func(w, h, q int) int { return 1 << 30 }}
	var trace []Attempt
	s := NewSearcher(codec)
	s.Trace = func(a Attempt) { trace = append(trace, a) }
	src := &imaging.Image{Width: 100000, Height: 100000, Mode: imaging.ModeRGB}

	res, err := s.Search(context.Background(), src, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Found || res.Reason != ReasonIterationCap || res.Iterations != DefaultMaxIterations {
		t.Fatalf("got %+v, want iteration cap after %d", res, DefaultMaxIterations)
	}
	if len(trace) != DefaultMaxIterations {
		t.Errorf("trace len = %d, want %d", len(trace), DefaultMaxIterations)
	}
	assertOneAxisPerStep(t, trace)
}

func TestSearchCustomIterationCap(t *testing.T) {
	codec := &sizeCodec{size: func(w, h, q int) int { return 1 << 30 }}
	s := &Searcher{Codec: codec, MaxIterations: 3}
	src := &imaging.Image{Width: 1000, Height: 1000, Mode: imaging.ModeRGB}

	res, err := s.Search(context.Background(), src, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Reason != ReasonIterationCap || len(codec.encodes) != 3 {
		t.Fatalf("got %+v with %d encodes, want cap after 3", res, len(codec.encodes))
	}
}

func TestSearchCancelled(t *testing.T) {
	codec := &sizeCodec{size: areaQuality}
	s := NewSearcher(codec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Search(ctx, &imaging.Image{Width: 10, Height: 10}, 1000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Found || res.Reason != ReasonCancelled || len(codec.encodes) != 0 {
		t.Fatalf("got %+v, want cancelled before any encode", res)
	}
}

func TestSearchPropagatesCodecErrors(t *testing.T) {
	boom := errors.New("boom")
	s := NewSearcher(&sizeCodec{size: areaQuality, fail: boom})

	_, err := s.Search(context.Background(), &imaging.Image{Width: 10, Height: 10}, 1000)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestSearchRealCodec(t *testing.T) {
	codec := imaging.NewProcessor()
	src, err := codec.Decode(noisePNG(t, 320, 240))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s := NewSearcher(codec)

	full, err := codec.Encode(src, imaging.JPEG, 95)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	budget := len(full) / 3

	var trace []Attempt
	s.Trace = func(a Attempt) { trace = append(trace, a) }
	res, err := s.Search(context.Background(), src, budget)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found {
		t.Fatalf("expected reachable budget %d to succeed, got %+v", budget, res)
	}
	if len(res.Data) > budget {
		t.Errorf("encoded size %d exceeds budget %d", len(res.Data), budget)
	}
	cfg, err := jpegConfig(res.Data)
	if err != nil {
		t.Fatalf("result is not a JPEG: %v", err)
	}
	if cfg.Width != res.Width || cfg.Height != res.Height {
		t.Errorf("JPEG is %dx%d, result says %dx%d", cfg.Width, cfg.Height, res.Width, res.Height)
	}
	assertOneAxisPerStep(t, trace)

	// A one-byte budget is below anything JPEG can produce.
	res, err = s.Search(context.Background(), src, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Found || res.Iterations > DefaultMaxIterations {
		t.Fatalf("got %+v, want failure within %d iterations", res, DefaultMaxIterations)
	}
}

func TestSearchFlattensAlphaSource(t *testing.T) {
	codec := imaging.NewProcessor()
	rgba := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	rgba.SetNRGBA(3, 3, color.NRGBA{R: 10, A: 10})
	src := &imaging.Image{Pixels: rgba, Width: 16, Height: 16, Mode: imaging.ModeRGBA}

	res, err := NewSearcher(codec).Search(context.Background(), src, 1<<20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found || res.Iterations != 1 {
		t.Fatalf("got %+v, want immediate success", res)
	}
}

func assertOneAxisPerStep(t *testing.T, trace []Attempt) {
	t.Helper()
	for i := 1; i < len(trace); i++ {
		prev, cur := trace[i-1], trace[i]
		scaleMoved := cur.Scale != prev.Scale
		qualityMoved := cur.Quality != prev.Quality
		if scaleMoved && qualityMoved {
			t.Errorf("attempt %d changed both scale and quality", cur.Iteration)
		}
		if !scaleMoved && !qualityMoved {
			t.Errorf("attempt %d changed neither axis", cur.Iteration)
		}
	}
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	codec := imaging.NewProcessor()
	data, err := codec.Encode(&imaging.Image{Pixels: img, Width: w, Height: h, Mode: imaging.ModeRGB}, imaging.PNG, 0)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return data
}

func jpegConfig(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	return cfg, err
}
