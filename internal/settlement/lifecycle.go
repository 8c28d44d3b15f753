package settlement

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tabsera/settlement/internal/domain"
	"github.com/tabsera/settlement/internal/registry"
	"github.com/tabsera/settlement/internal/repository"
)

// ErrSettlementNotFound is returned when a settlement id does not
// resolve to a row.
var ErrSettlementNotFound = errors.New("settlement not found")

// TransitionError reports an attempted illegal status transition.
type TransitionError struct {
	SettlementID string
	From         domain.SettlementStatus
	To           domain.SettlementStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("settlement %s: illegal transition %s -> %s",
		e.SettlementID, e.From, e.To)
}

// SuspensionSignal asks the contract-management side to suspend a
// center that has accumulated too many consecutive overdue
// settlements. The engine only raises the signal; it never mutates
// contract status itself.
type SuspensionSignal struct {
	CenterID           string `json:"center_id"`
	ConsecutiveOverdue int    `json:"consecutive_overdue"`
	Threshold          int    `json:"threshold"`
}

// SuspensionNotifier consumes suspension signals.
type SuspensionNotifier interface {
	SuspensionRequested(SuspensionSignal)
}

// NotifierFunc adapts a function to the SuspensionNotifier interface.
type NotifierFunc func(SuspensionSignal)

func (f NotifierFunc) SuspensionRequested(sig SuspensionSignal) { f(sig) }

// Lifecycle drives settlement status transitions: the time-driven
// overdue sweep and the admin mark-paid action. Every transition
// appends to the audit trail.
type Lifecycle struct {
	settlements *repository.SettlementRepo
	registry    *registry.Registry
	notifier    SuspensionNotifier
	now         func() time.Time
}

func NewLifecycle(
	settlements *repository.SettlementRepo,
	reg *registry.Registry,
	notifier SuspensionNotifier,
	now func() time.Time,
) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	if notifier == nil {
		notifier = NotifierFunc(func(sig SuspensionSignal) {
			log.Printf("[lifecycle] Suspension requested for center %s (%d consecutive overdue, threshold %d)",
				sig.CenterID, sig.ConsecutiveOverdue, sig.Threshold)
		})
	}
	return &Lifecycle{settlements: settlements, registry: reg, notifier: notifier, now: now}
}

// MarkPaid finalizes a settlement against an explicit payment
// reference. Retrying with the same reference is a no-op; any other
// write against a paid settlement is an illegal transition. This is
// the only operation that sets paidAt.
func (l *Lifecycle) MarkPaid(id, paymentRef, actor string) (*domain.Settlement, error) {
	s, err := l.settlements.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("lookup settlement %s: %w", id, err)
	}
	if s == nil {
		return nil, fmt.Errorf("settlement %s: %w", id, ErrSettlementNotFound)
	}

	if s.Status == domain.SettlementPaid {
		if s.PaymentRef == paymentRef {
			return s, nil
		}
		return nil, &TransitionError{SettlementID: id, From: s.Status, To: domain.SettlementPaid}
	}
	if !s.Status.CanTransition(domain.SettlementPaid) {
		return nil, &TransitionError{SettlementID: id, From: s.Status, To: domain.SettlementPaid}
	}

	paidAt := l.now().UTC()
	ok, err := l.settlements.MarkPaid(id, paymentRef, paidAt)
	if err != nil {
		return nil, fmt.Errorf("mark settlement %s paid: %w", id, err)
	}
	if !ok {
		// Raced with another admin action; re-read and apply the same
		// idempotency rule.
		s, err = l.settlements.GetByID(id)
		if err != nil || s == nil {
			return nil, fmt.Errorf("re-read settlement %s after race: %w", id, err)
		}
		if s.Status == domain.SettlementPaid && s.PaymentRef == paymentRef {
			return s, nil
		}
		return nil, &TransitionError{SettlementID: id, From: s.Status, To: domain.SettlementPaid}
	}

	note := fmt.Sprintf("payment ref %s", paymentRef)
	if err := l.settlements.AppendAudit(id, domain.AuditPaid, actor, note, paidAt); err != nil {
		return nil, fmt.Errorf("audit settlement %s: %w", id, err)
	}

	log.Printf("[lifecycle] Settlement %s marked paid by %s (ref %s)", id, actor, paymentRef)
	return l.settlements.GetByID(id)
}

// SweepOverdue transitions every pending settlement past its due date
// to overdue and raises suspension signals for centers that crossed
// their contract's consecutive-overdue threshold. The sweep is
// idempotent and safe to re-run.
func (l *Lifecycle) SweepOverdue(now time.Time) (int, error) {
	due, err := l.settlements.ListDuePending(now)
	if err != nil {
		return 0, fmt.Errorf("list due settlements: %w", err)
	}

	swept := 0
	for i := range due {
		s := &due[i]
		ok, err := l.settlements.MarkOverdue(s.ID)
		if err != nil {
			log.Printf("[lifecycle] WARNING: mark settlement %s overdue: %v", s.ID, err)
			continue
		}
		if !ok {
			// Paid or swept concurrently.
			continue
		}

		note := fmt.Sprintf("due %s", s.DueDate.Format("2006-01-02"))
		if err := l.settlements.AppendAudit(s.ID, domain.AuditOverdue, "system", note, now.UTC()); err != nil {
			log.Printf("[lifecycle] WARNING: audit settlement %s: %v", s.ID, err)
		}
		swept++

		l.checkSuspension(s.CenterID, now)
	}

	if swept > 0 {
		log.Printf("[lifecycle] Swept %d settlements to overdue", swept)
	}
	return swept, nil
}

func (l *Lifecycle) checkSuspension(centerID string, now time.Time) {
	contract, err := l.registry.ActiveContract(centerID, now)
	if err != nil {
		// Without an active contract there is no threshold to apply;
		// contract management already owns this center's state.
		return
	}

	count, err := l.settlements.ConsecutiveOverdue(centerID)
	if err != nil {
		log.Printf("[lifecycle] WARNING: count overdue for center %s: %v", centerID, err)
		return
	}
	if count >= contract.SuspendAfterOverdue {
		l.notifier.SuspensionRequested(SuspensionSignal{
			CenterID:           centerID,
			ConsecutiveOverdue: count,
			Threshold:          contract.SuspendAfterOverdue,
		})
	}
}
