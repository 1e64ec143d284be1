package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/tochemey/goakt/v2/actors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultAskTimeout bounds a single request to the segment actor
const DefaultAskTimeout = 5 * time.Second

// SegmentRuntime is the default implementation of Runtime
type SegmentRuntime struct {
	actor      *SegmentActor
	askTimeout time.Duration

	// actorSystem is the GoAKT actor system
	actorSystem actors.ActorSystem
	pid         *actors.PID
	mu          sync.RWMutex

	logger zerolog.Logger
}

// NewSegmentRuntime creates a runtime serving actor. A zero askTimeout
// uses DefaultAskTimeout.
func NewSegmentRuntime(actor *SegmentActor, askTimeout time.Duration, logger zerolog.Logger) *SegmentRuntime {
	if askTimeout <= 0 {
		askTimeout = DefaultAskTimeout
	}
	return &SegmentRuntime{
		actor:      actor,
		askTimeout: askTimeout,
		logger:     logger.With().Str("component", "runtime").Logger(),
	}
}

// Start creates the actor system and spawns the segment actor
func (r *SegmentRuntime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.actorSystem != nil {
		return ErrAlreadyStarted
	}

	// Note: GoAKT uses its default logger. We track operations separately with zerolog
	actorSystem, err := actors.NewActorSystem("breakiter-" + uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to create actor system: %w", err)
	}

	if err := actorSystem.Start(ctx); err != nil {
		return fmt.Errorf("failed to start actor system: %w", err)
	}

	pid, err := r.spawn(ctx, actorSystem)
	if err != nil {
		_ = actorSystem.Stop(ctx)
		return err
	}

	r.actorSystem = actorSystem
	r.pid = pid

	r.logger.Info().Str("actor", pid.Name()).Msg("runtime started")
	return nil
}

func (r *SegmentRuntime) spawn(ctx context.Context, system actors.ActorSystem) (*actors.PID, error) {
	name := "segmenter-" + uuid.NewString()
	pid, err := system.Spawn(ctx, name, r.actor)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn actor %s: %w", name, err)
	}
	return pid, nil
}

// Segment asks the segment actor for the boundaries of data
func (r *SegmentRuntime) Segment(ctx context.Context, data []byte) ([]int32, error) {
	reply, err := r.ask(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return nil, err
	}

	st, ok := reply.(*structpb.Struct)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedReply, reply)
	}

	if msg, ok := st.GetFields()[FieldError]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSegmentFailed, msg.GetStringValue())
	}

	values := st.GetFields()[FieldBoundaries].GetListValue().GetValues()
	boundaries := make([]int32, len(values))
	for i, v := range values {
		boundaries[i] = int32(v.GetNumberValue())
	}
	return boundaries, nil
}

// Ping sends a health check through the actor
func (r *SegmentRuntime) Ping(ctx context.Context) error {
	ping := uuid.NewString()
	reply, err := r.ask(ctx, wrapperspb.String(ping))
	if err != nil {
		return err
	}

	pong, ok := reply.(*wrapperspb.StringValue)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedReply, reply)
	}
	if pong.GetValue() != ping {
		return ErrActorNotReady
	}
	return nil
}

func (r *SegmentRuntime) ask(ctx context.Context, msg proto.Message) (proto.Message, error) {
	pid, err := r.livePID(ctx)
	if err != nil {
		return nil, err
	}

	reply, err := actors.Ask(ctx, pid, msg, r.askTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to ask segment actor: %w", err)
	}
	return reply, nil
}

// livePID returns the actor, respawning it if it was passivated
func (r *SegmentRuntime) livePID(ctx context.Context) (*actors.PID, error) {
	r.mu.RLock()
	pid, system := r.pid, r.actorSystem
	r.mu.RUnlock()

	if system == nil {
		return nil, ErrNotStarted
	}
	if pid.IsRunning() {
		return pid, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.actorSystem == nil {
		return nil, ErrNotStarted
	}
	if r.pid.IsRunning() {
		return r.pid, nil
	}

	pid, err := r.spawn(ctx, r.actorSystem)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().Str("actor", pid.Name()).Msg("segment actor respawned")
	r.pid = pid
	return pid, nil
}

// Shutdown stops the segment actor and the actor system
func (r *SegmentRuntime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.actorSystem == nil {
		return ErrNotStarted
	}

	var result error
	if r.pid.IsRunning() {
		if err := r.pid.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to shutdown actor %s: %w", r.pid.Name(), err))
		}
	}

	if err := r.actorSystem.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to stop actor system: %w", err))
	}

	r.actorSystem = nil
	r.pid = nil

	if result != nil {
		r.logger.Error().Err(result).Msg("runtime shutdown failed")
		return result
	}

	r.logger.Info().Msg("runtime shutdown complete")
	return nil
}

// IsStarted reports whether Start has succeeded and Shutdown has not run
func (r *SegmentRuntime) IsStarted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actorSystem != nil
}

// Ensure SegmentRuntime implements Runtime
var _ Runtime = (*SegmentRuntime)(nil)
