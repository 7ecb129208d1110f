// Package orchestrator runs the autopilot pipeline for a single finding.
//
// A run walks a fixed sequence of states and exits at the first terminal one:
//
//	lock -> hard stops -> decide -> cooldown -> render -> execute -> close out
//
// The lock is released on every exit. Adapter errors and panics never escape
// Run; they are reported through Result.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/decision"
	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/template"
	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
	"github.com/boucer/prospek360-recovery-engine/internal/metrics"
)

// Messenger delivers a message on SMS or EMAIL. Subject is empty for SMS.
type Messenger interface {
	Send(ctx context.Context, channel domain.Channel, to, body, subject string) error
}

// TaskCreator opens a follow-up task for a human.
type TaskCreator interface {
	CreateTask(ctx context.Context, title, description string) (string, error)
}

// Closer marks a finding as handled.
type Closer interface {
	MarkTreated(ctx context.Context, findingID string) error
}

// Config holds orchestrator settings.
type Config struct {
	LockTTL            time.Duration    // Per-finding lock TTL (default: 60s)
	CloseAfterFallback bool             // Close the finding after a fallback task (default: true)
	Now                func() time.Time // Clock (default: time.Now)
}

// DefaultConfig returns default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		LockTTL:            60 * time.Second,
		CloseAfterFallback: true,
		Now:                time.Now,
	}
}

// Summary is a short human-readable outcome.
type Summary struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

const maxSummaryLines = 4

// Result is the structured outcome of a run.
type Result struct {
	OK          bool               `json:"ok"`
	Blocked     bool               `json:"blocked"`
	BlockReason domain.BlockReason `json:"block_reason,omitempty"`
	Fallback    bool               `json:"fallback"`
	Closed      bool               `json:"closed"`
	Rule        string             `json:"rule,omitempty"`
	Decision    *domain.Decision   `json:"decision,omitempty"`
	Log         []domain.LogEntry  `json:"log"`
	Summary     Summary            `json:"summary"`
}

// Orchestrator wires the lock, action log and adapters together.
type Orchestrator struct {
	cfg       Config
	locker    storage.Locker
	actions   storage.ActionLog
	messenger Messenger
	tasks     TaskCreator
	closer    Closer
	log       *slog.Logger
}

// New creates a new orchestrator.
func New(
	cfg Config,
	locker storage.Locker,
	actions storage.ActionLog,
	messenger Messenger,
	tasks TaskCreator,
	closer Closer,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Orchestrator{
		cfg:       cfg,
		locker:    locker,
		actions:   actions,
		messenger: messenger,
		tasks:     tasks,
		closer:    closer,
		log:       slog.Default().With("component", "autopilot"),
	}
}

// run carries the state of one invocation.
type run struct {
	o   *Orchestrator
	ctx context.Context
	c   *domain.AutoPilotContext
	key string
	res *Result
}

// Run executes the pipeline for c.
func (o *Orchestrator) Run(ctx context.Context, c *domain.AutoPilotContext) (res *Result) {
	start := time.Now()
	r := &run{o: o, ctx: ctx, c: c, key: c.Key(), res: &Result{Log: []domain.LogEntry{}}}

	defer func() {
		metrics.OrchestratorDuration.Observe(time.Since(start).Seconds())
		metrics.OrchestratorRuns.WithLabelValues(outcome(res)).Inc()
	}()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			r.record(domain.ActionStop, domain.ChannelNone, domain.LogStatusFailed, "PANIC", err.Error())
			res = r.fail(domain.ActionStop, err)
		}
	}()

	// 1. Lock
	acquired, err := o.locker.Acquire(ctx, r.key, o.cfg.LockTTL)
	switch {
	case err != nil:
		metrics.LockErrors.Inc()
		o.log.Warn("Lock backend unavailable, running unlocked", "key", r.key, "error", err)
	case !acquired:
		metrics.LockContention.Inc()
		return r.block(domain.BlockAlreadyRunning, "Déjà en cours",
			"Une exécution est déjà en cours pour cette opportunité.")
	default:
		defer func() {
			if err := o.locker.Release(context.WithoutCancel(ctx), r.key); err != nil {
				o.log.Warn("Failed to release lock", "key", r.key, "error", err)
			}
		}()
	}

	// 2. Hard stops
	switch {
	case c.Treated:
		return r.block(domain.BlockAlreadyTreated, "Déjà traité",
			"Cette opportunité est déjà marquée comme traitée.")
	case c.Contact.OptOut:
		return r.block(domain.BlockOptOut, "Contact désabonné",
			"Le contact a refusé les communications. Aucun envoi n'a été tenté.")
	case !c.Contact.Reachable():
		return r.block(domain.BlockMissingContact, "Contact manquant",
			"Aucun téléphone ni courriel pour ce contact.",
			"Ajoutez une coordonnée puis relancez l'Autopilot.")
	}

	// 3. Decide
	d, rule := decision.DecideWithRule(c)
	r.res.Decision = &d
	r.res.Rule = rule
	if d.Kind == domain.ActionStop {
		return r.skip(d)
	}

	// 4. Cooldown
	if d.Cooldown() > 0 {
		last, err := o.actions.LastSuccessfulSend(ctx, r.key, c.FindingType)
		if err != nil {
			o.log.Warn("Failed to read action log, skipping cooldown check", "key", r.key, "error", err)
		}
		if last != nil {
			if age := o.cfg.Now().Sub(last.Timestamp); age < d.Cooldown() {
				return r.fallback(ctx, d, domain.BlockCooldownActive, fmt.Sprintf(
					"Dernier envoi il y a %s, délai minimum %dh.", age.Round(time.Minute), d.CooldownHours))
			}
		}
	}

	// 5. Render
	var msg *template.Rendered
	if d.TemplateKey != "" {
		if msg = template.Render(d.TemplateKey, c); msg == nil {
			return r.fallback(ctx, d, domain.BlockMissingTemplate, fmt.Sprintf(
				"Modèle %s incomplet, champs manquants : %s.", d.TemplateKey,
				fieldList(template.Missing(c, d.RequiredFields...))))
		}
	}

	// 6. Execute
	if err := r.execute(ctx, d, msg); err != nil {
		r.record(d.Kind, d.Channel, domain.LogStatusFailed, "", err.Error())
		r.compensate(ctx, d, err)
		return r.fail(d.Kind, err)
	}
	r.record(d.Kind, d.Channel, domain.LogStatusSuccess, "", describe(d, msg))

	// 7. Close out
	r.closeOut(ctx)
	r.res.OK = true
	r.res.Summary = summarize("Action exécutée : "+d.Label,
		fmt.Sprintf("%s via %s.", d.Kind, d.Channel),
		closedLine(r.res.Closed),
	)
	return r.res
}

func (r *run) execute(ctx context.Context, d domain.Decision, msg *template.Rendered) error {
	contact := r.c.Contact
	switch d.Kind {
	case domain.ActionSendSMS:
		return safely(func() error {
			return r.o.messenger.Send(ctx, domain.ChannelSMS, strings.TrimSpace(contact.Phone), msg.Body, "")
		})
	case domain.ActionSendEmail:
		return safely(func() error {
			return r.o.messenger.Send(ctx, domain.ChannelEmail, strings.TrimSpace(contact.Email), msg.Body, msg.Subject)
		})
	case domain.ActionCreateTask:
		return safely(func() error {
			_, err := r.o.tasks.CreateTask(ctx, r.taskTitle(d), r.suggestion(d, msg))
			return err
		})
	default:
		return fmt.Errorf("unsupported action %s", d.Kind)
	}
}

// fallback replaces a send that cannot run with a follow-up task.
func (r *run) fallback(ctx context.Context, d domain.Decision, reason domain.BlockReason, detail string) *Result {
	r.res.Fallback = true
	r.res.BlockReason = reason
	r.record(d.Kind, d.Channel, domain.LogStatusBlocked, string(reason), detail)

	taskLine := "Tâche de suivi créée."
	err := safely(func() error {
		_, err := r.o.tasks.CreateTask(ctx, r.taskTitle(d), r.suggestion(d, nil)+"\n"+detail)
		return err
	})
	if err != nil {
		r.o.log.Warn("Fallback task creation failed", "key", r.key, "reason", reason, "error", err)
		r.record(domain.ActionCreateTask, domain.ChannelTask, domain.LogStatusFailed, string(reason), err.Error())
		taskLine = "La création de la tâche de suivi a échoué."
	} else {
		r.record(domain.ActionCreateTask, domain.ChannelTask, domain.LogStatusSuccess, string(reason), "")
	}

	if r.o.cfg.CloseAfterFallback {
		r.closeOut(ctx)
	}

	r.res.OK = true
	title := "Envoi différé : délai de relance actif"
	if reason == domain.BlockMissingTemplate {
		title = "Envoi impossible : informations manquantes"
	}
	r.res.Summary = summarize(title, detail, taskLine, closedLine(r.res.Closed))
	return r.res
}

// compensate opens a task after a failed primary action, best effort.
func (r *run) compensate(ctx context.Context, d domain.Decision, cause error) {
	if d.Kind == domain.ActionCreateTask {
		return
	}
	err := safely(func() error {
		_, err := r.o.tasks.CreateTask(ctx, r.taskTitle(d),
			fmt.Sprintf("%s\nÉchec de l'envoi : %v", r.suggestion(d, nil), cause))
		return err
	})
	if err != nil {
		r.o.log.Warn("Compensating task creation failed", "key", r.key, "error", err)
		r.record(domain.ActionCreateTask, domain.ChannelTask, domain.LogStatusFailed, "COMPENSATION", err.Error())
		return
	}
	r.record(domain.ActionCreateTask, domain.ChannelTask, domain.LogStatusSuccess, "COMPENSATION", "")
}

// closeOut marks the finding treated. Failure never changes the outcome.
func (r *run) closeOut(ctx context.Context) {
	err := safely(func() error { return r.o.closer.MarkTreated(ctx, r.key) })
	if err != nil {
		r.o.log.Warn("Failed to mark finding treated", "key", r.key, "error", err)
		r.record(domain.ActionMarkTreated, domain.ChannelNone, domain.LogStatusFailed, "", err.Error())
		return
	}
	r.res.Closed = true
	r.record(domain.ActionMarkTreated, domain.ChannelNone, domain.LogStatusSuccess, "", "")
}

func (r *run) block(reason domain.BlockReason, title string, lines ...string) *Result {
	r.res.Blocked = true
	r.res.BlockReason = reason
	r.record(domain.ActionStop, domain.ChannelNone, domain.LogStatusBlocked, string(reason), "")
	r.res.Summary = summarize(title, lines...)
	r.o.log.Info("Autopilot blocked", "key", r.key, "reason", reason)
	return r.res
}

func (r *run) skip(d domain.Decision) *Result {
	r.record(domain.ActionStop, domain.ChannelNone, domain.LogStatusSkipped, d.Label, "")
	r.res.OK = true
	r.res.Summary = summarize("Aucune action automatique",
		d.Label,
		"Utilisez la copie manuelle ou créez une tâche.",
	)
	return r.res
}

func (r *run) fail(kind domain.ActionKind, err error) *Result {
	r.o.log.Error("Autopilot action failed", "key", r.key, "action", kind, "error", err)
	r.res.OK = false
	r.res.Summary = summarize("Échec de l'action",
		err.Error(),
		"L'opportunité reste ouverte.",
	)
	return r.res
}

// record appends an entry to the result and the action log.
func (r *run) record(kind domain.ActionKind, ch domain.Channel, status domain.LogStatus, reason, details string) {
	now := r.o.cfg.Now()
	entry := domain.LogEntry{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Timestamp:   now,
		Key:         r.key,
		FindingType: r.c.FindingType,
		Action:      kind,
		Channel:     ch,
		Status:      status,
		Reason:      reason,
		Details:     details,
	}
	r.res.Log = append(r.res.Log, entry)
	metrics.ActionsTotal.WithLabelValues(string(kind), string(status)).Inc()

	// Detached from the caller so an aborted request still leaves a trace.
	if err := r.o.actions.Append(context.WithoutCancel(r.ctx), entry); err != nil {
		r.o.log.Warn("Failed to append action log", "key", r.key, "error", err)
	}
}

func (r *run) taskTitle(d domain.Decision) string {
	subject := strings.TrimSpace(r.c.Title)
	if subject == "" {
		subject = r.key
	}
	return fmt.Sprintf("%s : %s", d.Label, subject)
}

func (r *run) suggestion(d domain.Decision, msg *template.Rendered) string {
	if msg != nil {
		return msg.Body
	}
	if s := strings.TrimSpace(r.c.RecommendedAction); s != "" {
		return s
	}
	return fmt.Sprintf("Suggestion : %s par %s.", d.Label, d.Channel)
}

// safely runs an adapter call, turning a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("adapter panic: %v", p)
		}
	}()
	return fn()
}

func summarize(title string, lines ...string) Summary {
	out := make([]string, 0, maxSummaryLines)
	for _, l := range lines {
		if l == "" {
			continue
		}
		if len(out) == maxSummaryLines {
			break
		}
		out = append(out, l)
	}
	return Summary{Title: title, Lines: out}
}

func closedLine(closed bool) string {
	if closed {
		return "Opportunité marquée comme traitée."
	}
	return "Opportunité laissée ouverte."
}

func describe(d domain.Decision, msg *template.Rendered) string {
	if d.TemplateKey == "" || msg == nil {
		return d.Label
	}
	return d.TemplateKey
}

func fieldList(fields []domain.Field) string {
	if len(fields) == 0 {
		return "aucun"
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func outcome(res *Result) string {
	switch {
	case res == nil:
		return "failed"
	case res.Blocked:
		return "blocked"
	case res.Fallback:
		return "fallback"
	case !res.OK:
		return "failed"
	case res.Decision != nil && res.Decision.Kind == domain.ActionStop:
		return "skipped"
	default:
		return "success"
	}
}
