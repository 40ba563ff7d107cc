package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"classboard/internal/auth"
	"classboard/internal/metrics"
	"classboard/internal/websocket"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

const pdfMIME = "application/pdf"

// TokenVerifier validates strict-mode join tokens.
type TokenVerifier interface {
	Verify(token, channelID, userID string) (*auth.Claims, error)
}

// Options controls enforcement.
type Options struct {
	// Strict enables token-backed roles and relay-side permission checks.
	Strict bool
	// MaxDocumentBytes caps share-pdf blobs in both modes; 0 means no cap.
	MaxDocumentBytes int
	// DrawRatePerMinute limits drawing frames per connection; 0 disables.
	DrawRatePerMinute int
	// AuditBuffer and AuditTimeout tune the asynchronous audit writer.
	AuditBuffer  int
	AuditTimeout time.Duration
}

// Router turns inbound intents into directory mutations and fan-out.
// ARCHITECTURAL DISCOVERY: The router is the only component that decides who
// receives what; the directory owns state and the registry owns delivery.
type Router struct {
	registry    *websocket.Registry
	directory   interfaces.SessionDirectory
	verifier    TokenVerifier
	rateLimiter *RateLimiter
	audit       *auditor
	opts        Options
	now         func() time.Time
}

// NewRouter creates a message router. eventLog may be nil; verifier is
// required only in strict mode.
func NewRouter(registry *websocket.Registry, directory interfaces.SessionDirectory, eventLog interfaces.EventLog, verifier TokenVerifier, opts Options) (*Router, error) {
	if opts.Strict && verifier == nil {
		return nil, ErrVerifierRequired
	}
	if opts.AuditBuffer <= 0 {
		opts.AuditBuffer = 256
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = 5 * time.Second
	}

	r := &Router{
		registry:  registry,
		directory: directory,
		verifier:  verifier,
		opts:      opts,
		now:       time.Now,
	}
	if opts.DrawRatePerMinute > 0 {
		r.rateLimiter = NewRateLimiter(opts.DrawRatePerMinute, time.Minute)
	}
	if eventLog != nil {
		r.audit = newAuditor(eventLog, opts.AuditBuffer, opts.AuditTimeout)
	}
	return r, nil
}

// Close flushes pending audit events.
func (r *Router) Close() {
	if r.audit != nil {
		r.audit.close()
	}
}

// RunMaintenance prunes idle rate limiter entries until ctx is done.
func (r *Router) RunMaintenance(ctx context.Context, interval time.Duration) {
	if r.rateLimiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.rateLimiter.Cleanup(); n > 0 {
				log.Printf("Rate limiter cleanup removed %d idle entries", n)
			}
		}
	}
}

// teacherOnly lists intents only a teacher may issue.
var teacherOnly = map[string]bool{
	types.EventToggleLock:          true,
	types.EventSharePDF:            true,
	types.EventTogglePDFVisibility: true,
	types.EventRemovePDF:           true,
}

// HandleFrame processes one inbound frame. It runs on the hub goroutine.
func (r *Router) HandleFrame(ctx context.Context, conn interfaces.Connection, frame []byte) {
	env, err := types.DecodeEnvelope(frame)
	if err != nil {
		r.reject(ctx, conn, "", err)
		return
	}

	switch env.Event {
	case types.EventJoinWhiteboard:
		err = r.handleJoin(ctx, conn, env)
	case types.EventLeaveWhiteboard:
		err = r.handleLeave(conn, env)
	case types.EventDrawing:
		err = r.handleDrawing(conn, env, frame)
	case types.EventClearCanvas:
		err = r.handleClear(conn, env, frame)
	case types.EventToggleLock:
		err = r.handleToggleLock(conn, env)
	case types.EventSharePDF:
		err = r.handleSharePDF(conn, env)
	case types.EventTogglePDFVisibility:
		err = r.handleTogglePDFVisibility(conn, env)
	case types.EventRemovePDF:
		err = r.handleRemovePDF(conn, env)
	default:
		err = fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
	}

	if err != nil {
		r.reject(ctx, conn, env.Event, err)
		return
	}
	metrics.EventsRelayed.WithLabelValues(env.Event).Inc()
}

// HandleDisconnect performs the implicit leave for a closed connection.
func (r *Router) HandleDisconnect(ctx context.Context, conn interfaces.Connection) {
	if r.rateLimiter != nil {
		r.rateLimiter.Forget(conn.ID())
	}
	r.leave(conn, "disconnect")
}

func (r *Router) handleJoin(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var req types.JoinRequest
	if err := env.Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidJoin, err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	role, name := req.Role, req.UserName
	if r.opts.Strict {
		claims, err := r.verifier.Verify(req.Token, req.ChannelID, req.UserID)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrPermissionDenied, err)
		}
		role = claims.Role
		if claims.Name != "" {
			name = claims.Name
		}
	}
	if name == "" {
		name = req.UserID
	}

	// FUNCTIONAL DISCOVERY: A connection belongs to one channel at a time; joining
	// elsewhere (or as someone else) leaves the previous channel first.
	if conn.IsJoined() && (conn.GetChannelID() != req.ChannelID || conn.GetUserID() != req.UserID) {
		r.leave(conn, "explicit")
	}

	participant := types.Participant{
		ChannelID: req.ChannelID,
		UserID:    req.UserID,
		UserName:  name,
		Role:      role,
		JoinedAt:  r.now(),
	}
	snapshot, err := r.directory.Join(req.ChannelID, participant)
	if err != nil {
		return err
	}
	if err := conn.SetIdentity(participant); err != nil {
		r.directory.Leave(req.ChannelID, req.UserID)
		return err
	}
	replaced, err := r.registry.Register(conn)
	if err != nil {
		conn.ClearIdentity()
		r.directory.Leave(req.ChannelID, req.UserID)
		return err
	}
	if replaced != nil {
		log.Printf("User %s reconnected to channel %s, replacing connection %s", req.UserID, req.ChannelID, replaced.ID())
		metrics.Leaves.WithLabelValues("replaced").Inc()
	}

	payload := types.NewSnapshotPayload(snapshot)
	payload.Role = role
	r.sendTo(conn, types.EventSessionSnapshot, payload)
	r.broadcast(req.ChannelID, types.EventUserCount, snapshot.ParticipantCount, "")

	metrics.Joins.WithLabelValues(string(role)).Inc()
	metrics.ChannelsActive.Set(float64(len(r.directory.List())))
	r.record(conn, types.KindJoin, map[string]interface{}{"userName": name})

	log.Printf("User %s (%s) joined channel %s, %d participants", req.UserID, role, req.ChannelID, snapshot.ParticipantCount)
	return nil
}

// handleLeave always leaves the joined channel; a payload naming another
// channel or user is logged and otherwise ignored.
func (r *Router) handleLeave(conn interfaces.Connection, env *types.Envelope) error {
	if !conn.IsJoined() {
		return types.ErrNotJoined
	}
	var req types.LeaveRequest
	if err := env.Decode(&req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	r.targetChannel(conn, req.ChannelID)
	if req.UserID != conn.GetUserID() {
		log.Printf("Connection %s sent leave for user %s while joined as %s; leaving as %s",
			conn.ID(), req.UserID, conn.GetUserID(), conn.GetUserID())
	}
	if r.rateLimiter != nil {
		r.rateLimiter.Forget(conn.ID())
	}
	r.leave(conn, "explicit")
	return nil
}

// leave removes conn from its channel if it is still the registered connection
// for its user; stale connections replaced by a reconnect are only detached.
func (r *Router) leave(conn interfaces.Connection, cause string) {
	if !conn.IsJoined() {
		return
	}
	channelID, userID, role := conn.GetChannelID(), conn.GetUserID(), conn.GetRole()

	if !r.registry.Unregister(conn) {
		conn.ClearIdentity()
		return
	}
	count, removed := r.directory.Leave(channelID, userID)
	r.record(conn, types.KindLeave, map[string]interface{}{"cause": cause})
	conn.ClearIdentity()

	metrics.Leaves.WithLabelValues(cause).Inc()
	metrics.ChannelsActive.Set(float64(len(r.directory.List())))

	if !removed {
		r.broadcast(channelID, types.EventUserCount, count, "")
	}
	log.Printf("User %s (%s) left channel %s (%s), %d participants", userID, role, channelID, cause, count)
}

// handleDrawing fans a drawing frame out to every other channel member.
// FUNCTIONAL DISCOVERY: Permissive mode forwards the received bytes untouched;
// strict mode parses the event so it can enforce the lock and stamp the sender.
func (r *Router) handleDrawing(conn interfaces.Connection, env *types.Envelope, frame []byte) error {
	if !conn.IsJoined() {
		return types.ErrNotJoined
	}
	if r.rateLimiter != nil && !r.rateLimiter.Allow(conn.ID()) {
		return types.ErrRateLimited
	}

	out := frame
	if r.opts.Strict {
		var ev types.DrawingEvent
		if err := env.Decode(&ev); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidDrawing, err)
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		if err := r.checkLocked(conn); err != nil {
			return err
		}
		ev.ChannelID = conn.GetChannelID()
		ev.UserID = conn.GetUserID()
		encoded, err := types.EncodeEnvelope(types.EventDrawing, ev)
		if err != nil {
			return err
		}
		out = encoded
	}

	r.fanOut(conn.GetChannelID(), out, conn.ID())
	return nil
}

// handleClear fans clear-canvas out like a drawing frame: verbatim when
// permissive, stamped with the verified sender when strict.
func (r *Router) handleClear(conn interfaces.Connection, env *types.Envelope, frame []byte) error {
	if !conn.IsJoined() {
		return types.ErrNotJoined
	}
	out := frame
	if r.opts.Strict {
		if err := r.checkLocked(conn); err != nil {
			return err
		}
		var req types.ClearCanvasRequest
		if len(env.Data) > 0 {
			if err := env.Decode(&req); err != nil {
				return err
			}
		}
		req.ChannelID = conn.GetChannelID()
		req.UserID = conn.GetUserID()
		encoded, err := types.EncodeEnvelope(types.EventClearCanvas, req)
		if err != nil {
			return err
		}
		out = encoded
	}
	r.fanOut(conn.GetChannelID(), out, conn.ID())
	return nil
}

func (r *Router) checkLocked(conn interfaces.Connection) error {
	if conn.GetRole() == types.RoleTeacher {
		return nil
	}
	snapshot, ok := r.directory.Get(conn.GetChannelID())
	if !ok || snapshot.Locked {
		return ErrBoardLocked
	}
	return nil
}

// authorize applies the teacher-only rule for event.
// TECHNICAL DISCOVERY: In permissive mode the role is whatever the client asserted
// at join, so a non-teacher intent is accepted but made visible in logs and metrics.
func (r *Router) authorize(conn interfaces.Connection, event string) error {
	if !conn.IsJoined() {
		return types.ErrNotJoined
	}
	if !teacherOnly[event] || conn.GetRole() == types.RoleTeacher {
		return nil
	}
	if r.opts.Strict {
		return fmt.Errorf("%w: %s requires the teacher role", types.ErrPermissionDenied, event)
	}
	log.Printf("WARNING: accepting %s from %s (%s) in channel %s; permissive mode does not enforce roles",
		event, conn.GetUserID(), conn.GetRole(), conn.GetChannelID())
	metrics.UntrustedTeacherIntents.Inc()
	return nil
}

// decodeControl authorizes and decodes a teacher-only intent.
func (r *Router) decodeControl(conn interfaces.Connection, env *types.Envelope, req interface{ Validate() error }) error {
	if err := r.authorize(conn, env.Event); err != nil {
		return err
	}
	if err := env.Decode(req); err != nil {
		return err
	}
	return req.Validate()
}

func (r *Router) handleToggleLock(conn interfaces.Connection, env *types.Envelope) error {
	var req types.ToggleLockRequest
	if err := r.decodeControl(conn, env, &req); err != nil {
		return err
	}
	channelID := r.targetChannel(conn, req.ChannelID)

	snapshot, err := r.directory.SetLocked(channelID, req.Locked)
	if err != nil {
		return err
	}
	r.broadcast(channelID, types.EventLockStatus, snapshot.Locked, "")

	kind := types.KindUnlock
	if snapshot.Locked {
		kind = types.KindLock
	}
	r.record(conn, kind, nil)
	return nil
}

func (r *Router) handleSharePDF(conn interfaces.Connection, env *types.Envelope) error {
	var req types.SharePDFRequest
	if err := r.decodeControl(conn, env, &req); err != nil {
		return err
	}
	if r.opts.MaxDocumentBytes > 0 && len(req.PDFData) > r.opts.MaxDocumentBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", types.ErrDocumentTooLarge, len(req.PDFData), r.opts.MaxDocumentBytes)
	}
	if r.opts.Strict {
		if detected := mimetype.Detect(req.PDFData); !detected.Is(pdfMIME) {
			return fmt.Errorf("%w: detected %s", types.ErrUnsupportedDocumentType, detected.String())
		}
	}

	sharedBy := req.SharedBy
	if r.opts.Strict || sharedBy == "" {
		sharedBy = conn.GetUserName()
	}
	channelID := r.targetChannel(conn, req.ChannelID)

	snapshot, err := r.directory.ShareDocument(channelID, types.DocumentState{
		Blob:     req.PDFData,
		FileName: req.FileName,
		SharedBy: sharedBy,
	})
	if err != nil {
		return err
	}
	r.broadcast(channelID, types.EventPDFShared, types.DocumentPayload(snapshot.Document), "")

	metrics.DocumentBytes.Observe(float64(len(req.PDFData)))
	r.record(conn, types.KindDocumentShared, map[string]interface{}{
		"fileName": req.FileName,
		"size":     len(req.PDFData),
	})
	return nil
}

func (r *Router) handleTogglePDFVisibility(conn interfaces.Connection, env *types.Envelope) error {
	var req types.TogglePDFVisibilityRequest
	if err := r.decodeControl(conn, env, &req); err != nil {
		return err
	}
	channelID := r.targetChannel(conn, req.ChannelID)

	snapshot, err := r.directory.SetDocumentVisibility(channelID, req.Visible)
	if err != nil {
		return err
	}
	r.broadcast(channelID, types.EventPDFVisibilityChanged, snapshot.Document.VisibleToStudents, "")
	r.record(conn, types.KindDocumentVisibility, map[string]interface{}{"visible": req.Visible})
	return nil
}

func (r *Router) handleRemovePDF(conn interfaces.Connection, env *types.Envelope) error {
	var req types.RemovePDFRequest
	if err := r.decodeControl(conn, env, &req); err != nil {
		return err
	}
	channelID := r.targetChannel(conn, req.ChannelID)

	if _, err := r.directory.RemoveDocument(channelID); err != nil {
		return err
	}
	r.broadcast(channelID, types.EventPDFRemoved, nil, "")
	r.record(conn, types.KindDocumentRemoved, nil)
	return nil
}

// targetChannel returns the joined channel; payload channel ids are advisory.
func (r *Router) targetChannel(conn interfaces.Connection, requested string) string {
	joined := conn.GetChannelID()
	if requested != "" && requested != joined {
		log.Printf("Connection %s addressed channel %s while joined to %s; using joined channel", conn.ID(), requested, joined)
	}
	return joined
}

// reject reports a refused intent back to its sender only.
func (r *Router) reject(ctx context.Context, conn interfaces.Connection, event string, err error) {
	reason := rejectionReason(err)
	metrics.RejectedIntents.WithLabelValues(reason).Inc()
	log.Printf("Rejected %q from connection %s (user %q): %v", event, conn.ID(), conn.GetUserID(), err)

	if conn.IsJoined() && errors.Is(err, types.ErrPermissionDenied) {
		r.record(conn, types.KindPermissionDenied, map[string]interface{}{"event": event, "reason": reason})
	}
	r.sendTo(conn, types.EventError, types.ErrorPayload{
		Event:   event,
		Code:    types.ErrorCode(err),
		Message: err.Error(),
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrBoardLocked):
		return metrics.ReasonLocked
	case errors.Is(err, types.ErrPermissionDenied):
		return metrics.ReasonPermission
	case errors.Is(err, types.ErrUnsupportedDocumentType):
		return metrics.ReasonDocumentType
	case errors.Is(err, types.ErrDocumentTooLarge):
		return metrics.ReasonDocumentSize
	case errors.Is(err, types.ErrRateLimited):
		return metrics.ReasonRateLimited
	case errors.Is(err, types.ErrNotJoined):
		return metrics.ReasonNotJoined
	default:
		return metrics.ReasonInvalid
	}
}

func (r *Router) sendTo(conn interfaces.Connection, event string, data interface{}) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		log.Printf("Failed to encode %s for connection %s: %v", event, conn.ID(), err)
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("Failed to deliver %s to connection %s: %v", event, conn.ID(), err)
	}
}

// broadcast encodes once and delivers to every channel member except exceptConnID.
func (r *Router) broadcast(channelID, event string, data interface{}, exceptConnID string) {
	frame, err := types.EncodeEnvelope(event, data)
	if err != nil {
		log.Printf("Failed to encode %s for channel %s: %v", event, channelID, err)
		return
	}
	r.fanOut(channelID, frame, exceptConnID)
}

// fanOut delivers frame to channel members.
// FUNCTIONAL DISCOVERY: Continue delivery to other recipients even if one fails.
func (r *Router) fanOut(channelID string, frame []byte, exceptConnID string) {
	for _, peer := range r.registry.ChannelPeers(channelID, exceptConnID) {
		if err := peer.Send(frame); err != nil {
			log.Printf("Failed to deliver frame to %s in channel %s: %v", peer.GetUserID(), channelID, err)
		}
	}
}

func (r *Router) record(conn interfaces.Connection, kind string, detail map[string]interface{}) {
	if r.audit == nil {
		return
	}
	r.audit.record(&types.ChannelEvent{
		ChannelID: conn.GetChannelID(),
		Kind:      kind,
		UserID:    conn.GetUserID(),
		Role:      conn.GetRole(),
		Detail:    detail,
		CreatedAt: r.now(),
	})
}
