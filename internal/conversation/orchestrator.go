// Package conversation sequences the multi-turn resize dialog: receive an
// image, pick a mode, supply parameters, get the result back.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/sizesync/internal/history"
	"github.com/samsaffron/sizesync/internal/imaging"
	"github.com/samsaffron/sizesync/internal/resize"
)

// DefaultMaxDimension caps each side of pixel and centimeter targets.
const DefaultMaxDimension = 10000

const storeTimeout = 5 * time.Second

var errDimensionLimit = fmt.Errorf("%w: over the size limit", resize.ErrInvalidDimensions)

// Document is a resized image ready for delivery.
type Document struct {
	Data     []byte
	Filename string
	Format   imaging.Format
	Caption  string
	Width    int
	Height   int
}

// Reply is the outcome of one event: the text to show, an optional menu, an
// optional document, and the state the session is in afterwards. Err
// classifies failures (nil on success) and never reaches the user verbatim.
type Reply struct {
	Text     string
	Choices  []Choice
	Document *Document
	State    State
	Err      error
}

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	Codec        imaging.Codec
	Searcher     *resize.Searcher
	Store        history.Store
	IdleTimeout  time.Duration // 0 disables expiry
	MaxDimension int
	Debug        bool
	Now          func() time.Time
}

// Orchestrator owns every live session. Events for the same session id are
// handled one at a time in arrival order; different ids proceed in parallel.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[int64]*session

	codec        imaging.Codec
	searcher     *resize.Searcher
	store        history.Store
	idleTimeout  time.Duration
	maxDimension int
	now          func() time.Time
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		sessions:     make(map[int64]*session),
		codec:        opts.Codec,
		store:        opts.Store,
		idleTimeout:  opts.IdleTimeout,
		maxDimension: opts.MaxDimension,
		now:          opts.Now,
	}
	if o.codec == nil {
		o.codec = imaging.NewProcessor()
	}
	if opts.Searcher != nil {
		s := *opts.Searcher
		o.searcher = &s
	} else {
		o.searcher = resize.NewSearcher(o.codec)
	}
	if o.searcher.Codec == nil {
		o.searcher.Codec = o.codec
	}
	if opts.Debug && o.searcher.Trace == nil {
		o.searcher.Trace = func(a resize.Attempt) {
			log.Printf("[conversation] search #%d scale=%.3f %dx%d q=%d -> %d bytes", a.Iteration, a.Scale, a.Width, a.Height, a.Quality, a.Size)
		}
	}
	if o.store == nil {
		o.store = &history.NoopStore{}
	}
	if o.maxDimension <= 0 {
		o.maxDimension = DefaultMaxDimension
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// acquire returns the live session for id with its lock held. When create
// is set a fresh session is made if none exists; otherwise nil is returned.
// expired reports that an idle session was discarded on the way.
func (o *Orchestrator) acquire(id int64, create bool) (sess *session, expired bool) {
	for {
		o.mu.Lock()
		sess = o.sessions[id]
		if sess == nil {
			if !create {
				o.mu.Unlock()
				return nil, expired
			}
			sess = newSession(id, o.now())
			o.sessions[id] = sess
		}
		o.mu.Unlock()

		sess.mu.Lock()
		if sess.retired {
			sess.mu.Unlock()
			continue
		}
		if o.isIdle(sess) {
			log.Printf("[conversation] session %d expired after %s idle", id, o.now().Sub(sess.lastActivity).Round(time.Second))
			o.retire(sess)
			sess.mu.Unlock()
			expired = true
			continue
		}
		sess.lastActivity = o.now()
		return sess, expired
	}
}

func (o *Orchestrator) isIdle(sess *session) bool {
	return o.idleTimeout > 0 && o.now().Sub(sess.lastActivity) > o.idleTimeout
}

// retire clears sess and removes it from the map. sess.mu must be held.
func (o *Orchestrator) retire(sess *session) {
	sess.release()
	o.mu.Lock()
	if o.sessions[sess.id] == sess {
		delete(o.sessions, sess.id)
	}
	o.mu.Unlock()
}

// OnImageReceived starts a conversation from raw image bytes. Any flow
// already in progress for id is abandoned.
func (o *Orchestrator) OnImageReceived(ctx context.Context, id int64, data []byte) Reply {
	sess, _ := o.acquire(id, true)
	defer o.unlock(ctx, sess)

	if sess.source != nil {
		log.Printf("[conversation] session %d: new image abandons %s", id, sess.state)
	}
	sess.source = nil
	sess.mode = 0
	sess.state = StateAwaitingImage

	img, err := o.codec.Decode(data)
	if err != nil {
		o.retire(sess)
		text := msgSendImage
		if errors.Is(err, imaging.ErrTooLarge) {
			text = msgImageTooLarge
		}
		if len(data) > 0 {
			log.Printf("[conversation] session %d: %v", id, err)
		}
		return Reply{Text: text, State: StateAwaitingImage, Err: fmt.Errorf("%w: %w", ErrNoImage, err)}
	}

	sess.source = img
	sess.state = StateAwaitingModeChoice
	return Reply{Text: msgChooseMode, Choices: ModeChoices(), State: sess.state}
}

// OnChoiceReceived records the chosen resize mode and asks for its parameters.
func (o *Orchestrator) OnChoiceReceived(ctx context.Context, id int64, choice string) Reply {
	sess, expired := o.acquire(id, false)
	if sess == nil {
		if expired {
			return Reply{Text: msgExpired, State: StateAwaitingImage, Err: ErrExpired}
		}
		return Reply{Text: msgStaleChoice, State: StateAwaitingImage, Err: ErrStaleChoice}
	}
	defer o.unlock(ctx, sess)

	if sess.state != StateAwaitingModeChoice {
		return Reply{Text: msgStaleChoice, State: sess.state, Err: ErrStaleChoice}
	}

	mode, ok := resize.ParseMode(choice)
	if !ok {
		o.finish(sess, &history.Job{Input: choice, Outcome: history.OutcomeFailed})
		return Reply{Text: msgInvalidOption, State: StateTerminal, Err: fmt.Errorf("%w: %q", ErrUnsupportedChoice, choice)}
	}

	sess.mode = mode
	sess.state = inputState(mode)
	return Reply{Text: promptFor(mode), State: sess.state}
}

// OnTextReceived handles parameter text for the chosen mode. Malformed text
// keeps the state and source image and re-prompts; valid text produces the
// resized image and ends the conversation.
func (o *Orchestrator) OnTextReceived(ctx context.Context, id int64, text string) Reply {
	sess, expired := o.acquire(id, false)
	if sess == nil {
		if expired {
			return Reply{Text: msgExpired, State: StateAwaitingImage, Err: ErrExpired}
		}
		return Reply{Text: msgSendImage, State: StateAwaitingImage, Err: ErrNoImage}
	}
	defer o.unlock(ctx, sess)

	switch sess.state {
	case StateAwaitingModeChoice:
		return Reply{
			Text:    msgChooseMode,
			Choices: ModeChoices(),
			State:   sess.state,
			Err:     fmt.Errorf("%w: choose a resize mode first", ErrInputFormat),
		}
	case StateAwaitingPixelInput, StateAwaitingCmInput, StateAwaitingKbInput:
	default:
		return Reply{Text: msgSendImage, State: sess.state, Err: ErrNoImage}
	}

	req, err := resize.Parse(sess.mode, text)
	if err == nil && req.Mode != resize.ModeSizeBudget {
		err = o.checkDimensions(req)
	}
	if err != nil {
		reply := Reply{Text: formatErrorFor(sess.mode), State: sess.state, Err: err}
		if errors.Is(err, errDimensionLimit) {
			reply.Text = fmt.Sprintf("Dimensions must be at most %d pixels per side.", o.maxDimension)
		}
		return reply
	}

	if req.Mode == resize.ModeSizeBudget {
		return o.fitBudget(ctx, sess, req, text)
	}
	return o.resizeExact(ctx, sess, req, text)
}

// OnCancel abandons whatever flow is in progress for id.
func (o *Orchestrator) OnCancel(ctx context.Context, id int64) Reply {
	sess, _ := o.acquire(id, false)
	if sess != nil {
		defer o.unlock(ctx, sess)
		o.finish(sess, &history.Job{Outcome: history.OutcomeCancelled})
	}
	return Reply{Text: msgCancelled, State: StateTerminal}
}

func (o *Orchestrator) checkDimensions(req resize.Request) error {
	if req.Width > o.maxDimension || req.Height > o.maxDimension {
		return fmt.Errorf("%w: %dx%d > %d", errDimensionLimit, req.Width, req.Height, o.maxDimension)
	}
	return nil
}

func (o *Orchestrator) resizeExact(ctx context.Context, sess *session, req resize.Request, input string) Reply {
	out, err := o.codec.Resize(sess.source, req.Width, req.Height)
	if err != nil {
		return o.fail(ctx, sess, input, err)
	}
	data, err := o.codec.Encode(out, imaging.PNG, 0)
	if err != nil {
		return o.fail(ctx, sess, input, err)
	}

	o.finish(sess, &history.Job{
		Input:   input,
		Width:   out.Width,
		Height:  out.Height,
		Bytes:   len(data),
		Outcome: history.OutcomeDelivered,
	})
	return Reply{
		Text:     statusText(req, len(data)),
		Document: &Document{Data: data, Filename: filenameFor(req.Mode), Format: imaging.PNG, Caption: msgCaption, Width: out.Width, Height: out.Height},
		State:    StateTerminal,
	}
}

func (o *Orchestrator) fitBudget(ctx context.Context, sess *session, req resize.Request, input string) Reply {
	res, err := o.searcher.Search(ctx, sess.source, req.TargetBytes)
	if err != nil {
		return o.fail(ctx, sess, input, err)
	}
	if !res.Found {
		log.Printf("[conversation] session %d: %d byte budget unreachable (%s after %d iterations)", sess.id, req.TargetBytes, res.Reason, res.Iterations)
		o.finish(sess, &history.Job{Input: input, Outcome: history.OutcomeUnreachable})
		return Reply{
			Text:  unreachableText(req.TargetBytes),
			State: StateTerminal,
			Err:   fmt.Errorf("%w: %s after %d iterations", ErrBudgetUnreachable, res.Reason, res.Iterations),
		}
	}

	o.finish(sess, &history.Job{
		Input:   input,
		Width:   res.Width,
		Height:  res.Height,
		Quality: res.Quality,
		Bytes:   len(res.Data),
		Outcome: history.OutcomeDelivered,
	})
	return Reply{
		Text:     statusText(req, len(res.Data)),
		Document: &Document{Data: res.Data, Filename: filenameFor(req.Mode), Format: imaging.JPEG, Caption: msgCaption, Width: res.Width, Height: res.Height},
		State:    StateTerminal,
	}
}

func (o *Orchestrator) fail(ctx context.Context, sess *session, input string, err error) Reply {
	log.Printf("[conversation] session %d: %s failed: %v", sess.id, sess.mode, err)
	o.finish(sess, &history.Job{Input: input, Outcome: history.OutcomeFailed})
	return Reply{Text: msgProcessing, State: StateTerminal, Err: fmt.Errorf("%w: %w", ErrProcessing, err)}
}

// unlock releases sess, then records the job its event finished, if any,
// so a slow store never holds up the session.
func (o *Orchestrator) unlock(ctx context.Context, sess *session) {
	job := sess.pending
	sess.pending = nil
	sess.mu.Unlock()
	if job != nil {
		o.record(ctx, job)
	}
}

// finish retires the session and queues job for recording once the session
// is unlocked. sess.mu must be held.
func (o *Orchestrator) finish(sess *session, job *history.Job) {
	job.SessionID = sess.id
	if sess.mode != 0 {
		job.Mode = sess.mode.String()
	}
	if sess.source != nil {
		job.SourceWidth = sess.source.Width
		job.SourceHeight = sess.source.Height
	}
	job.Input = truncate(strings.TrimSpace(job.Input), 64)
	job.CreatedAt = o.now()
	o.retire(sess)
	sess.pending = job
}

func (o *Orchestrator) record(ctx context.Context, job *history.Job) {
	if ctx == nil {
		ctx = context.Background()
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := o.store.Record(storeCtx, job); err != nil {
		log.Printf("[history] Record failed for session %d: %v", job.SessionID, err)
	}
}

// State reports where the conversation for id currently stands. Ids without
// a live session are awaiting an image.
func (o *Orchestrator) State(id int64) State {
	o.mu.Lock()
	sess := o.sessions[id]
	o.mu.Unlock()
	if sess == nil {
		return StateAwaitingImage
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.retired {
		return StateAwaitingImage
	}
	return sess.state
}

// Active returns the number of live sessions.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Sweep discards sessions idle longer than the idle timeout and returns how
// many were dropped. Sessions busy handling an event are skipped.
func (o *Orchestrator) Sweep() int {
	if o.idleTimeout <= 0 {
		return 0
	}
	o.mu.Lock()
	candidates := make([]*session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		candidates = append(candidates, sess)
	}
	o.mu.Unlock()

	dropped := 0
	for _, sess := range candidates {
		if !sess.mu.TryLock() {
			continue
		}
		if !sess.retired && o.isIdle(sess) {
			o.retire(sess)
			dropped++
		}
		sess.mu.Unlock()
	}
	return dropped
}

// Close discards every session, waiting for in-flight events to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	sessions := make([]*session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		sessions = append(sessions, sess)
	}
	o.sessions = make(map[int64]*session)
	o.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		sess.release()
		sess.mu.Unlock()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
