package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/tier"
)

type memCode struct {
	partnerID int64
	status    model.RedemptionCodeStatus
	expiresAt time.Time
}

// memRepo хранит леджер в памяти с теми же гарантиями, что и PostgreSQL-реализация:
// уникальность рёбер и начислений, неотрицательные балансы, атомарные операции.
type memRepo struct {
	mu sync.Mutex

	nextID      int64
	partners    map[int64]*model.Partner
	referrals   []model.Referral
	commissions map[int64]*model.Commission
	withdrawals map[int64]*model.Withdrawal
	codes       map[string]memCode

	upstreamErr   error
	accrueErr     map[int64]error
	allCodesTaken bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		partners:    make(map[int64]*model.Partner),
		commissions: make(map[int64]*model.Commission),
		withdrawals: make(map[int64]*model.Withdrawal),
		codes:       make(map[string]memCode),
		accrueErr:   make(map[int64]error),
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) Ping(context.Context) error { return nil }

func (m *memRepo) Close() error { return nil }

func (m *memRepo) CreatePartner(_ context.Context, userID int64, partnerType model.PartnerType, code string, level tier.Level) (*model.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.partners {
		if p.UserID == userID {
			return nil, repository.ErrPartnerExists
		}
		if p.Code == code {
			return nil, repository.ErrCodeTaken
		}
	}

	p := &model.Partner{
		ID:               m.id(),
		UserID:           userID,
		Type:             partnerType,
		Code:             code,
		Tier:             level.Tier,
		CommissionRateL1: level.RateL1,
		CommissionRateL2: level.RateL2,
		Status:           model.PartnerStatusActive,
	}
	m.partners[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memRepo) GetPartner(_ context.Context, id int64) (*model.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[id]
	if !ok {
		return nil, repository.ErrPartnerNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) SetPartnerStatus(_ context.Context, id int64, status model.PartnerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[id]
	if !ok {
		return repository.ErrPartnerNotFound
	}
	p.Status = status
	return nil
}

func (m *memRepo) directEdge(userID int64) (model.Referral, bool) {
	for _, r := range m.referrals {
		if r.Level == 1 && r.ReferredUserID == userID {
			return r, true
		}
	}
	return model.Referral{}, false
}

func (m *memRepo) GetDirectReferrer(_ context.Context, userID int64) (*model.Partner, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	edge, ok := m.directEdge(userID)
	if !ok {
		return nil, 0, repository.ErrPartnerNotFound
	}
	cp := *m.partners[edge.PartnerID]
	return &cp, edge.ID, nil
}

func (m *memRepo) ListActivePartnersByType(_ context.Context, partnerType model.PartnerType) ([]model.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Partner
	for _, p := range m.partners {
		if p.Type == partnerType && p.Active() {
			res = append(res, *p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) AttributeDirect(_ context.Context, code string, userID int64) (*model.Referral, *model.Partner, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var p *model.Partner
	for _, candidate := range m.partners {
		if candidate.Code == code {
			p = candidate
		}
	}
	if p == nil {
		return nil, nil, false, repository.ErrPartnerNotFound
	}
	if !p.Active() {
		return nil, nil, false, repository.ErrPartnerInactive
	}
	if p.UserID == userID {
		return nil, nil, false, repository.ErrSelfReferral
	}

	if edge, ok := m.directEdge(userID); ok {
		owner := *m.partners[edge.PartnerID]
		return &edge, &owner, false, nil
	}

	edge := model.Referral{ID: m.id(), PartnerID: p.ID, ReferredUserID: userID, Level: 1}
	m.referrals = append(m.referrals, edge)
	p.TotalReferrals++

	cp := *p
	return &edge, &cp, true, nil
}

func (m *memRepo) AttributeUpstream(_ context.Context, direct *model.Referral, directPartner *model.Partner) (*model.Referral, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upstreamErr != nil {
		return nil, false, m.upstreamErr
	}

	parentEdge, ok := m.directEdge(directPartner.UserID)
	if !ok {
		return nil, false, nil
	}
	upstream := m.partners[parentEdge.PartnerID]
	if upstream.UserID == direct.ReferredUserID {
		return nil, false, nil
	}

	for _, r := range m.referrals {
		if r.Level == 2 && r.PartnerID == upstream.ID && r.ReferredUserID == direct.ReferredUserID {
			return &r, false, nil
		}
	}

	parentID := direct.ID
	edge := model.Referral{
		ID:               m.id(),
		PartnerID:        upstream.ID,
		ReferredUserID:   direct.ReferredUserID,
		Level:            2,
		ParentReferralID: &parentID,
	}
	m.referrals = append(m.referrals, edge)
	upstream.TotalL2Referrals++
	return &edge, true, nil
}

func (m *memRepo) ListReferrals(_ context.Context, partnerID int64) ([]model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Referral
	for _, r := range m.referrals {
		if r.PartnerID == partnerID {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memRepo) AccrueCommission(_ context.Context, c model.Commission) (*model.Commission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.accrueErr[c.PartnerID]; err != nil {
		return nil, false, err
	}

	p, ok := m.partners[c.PartnerID]
	if !ok {
		return nil, false, repository.ErrPartnerNotFound
	}
	if !p.Active() {
		return nil, false, repository.ErrPartnerInactive
	}

	for _, existing := range m.commissions {
		if existing.PartnerID == c.PartnerID && existing.OrderID == c.OrderID {
			cp := *existing
			return &cp, false, nil
		}
	}

	c.ID = m.id()
	c.Status = model.CommissionPending
	m.commissions[c.ID] = &c
	p.PendingBalance += c.CommissionAmount

	cp := c
	return &cp, true, nil
}

func (m *memRepo) DueCommissionIDs(_ context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, c := range m.commissions {
		if id > afterID && c.Status == model.CommissionPending && !c.ConfirmAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memRepo) ConfirmCommission(_ context.Context, id int64, now time.Time) (*model.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.commissions[id]
	if !ok {
		return nil, repository.ErrCommissionNotFound
	}
	if c.Status != model.CommissionPending || c.ConfirmAt.After(now) {
		return nil, repository.ErrAlreadyConfirmed
	}

	p := m.partners[c.PartnerID]
	if p.PendingBalance < c.CommissionAmount {
		return nil, fmt.Errorf("commission %d: pending balance drift", id)
	}
	p.PendingBalance -= c.CommissionAmount
	p.AvailableBalance += c.CommissionAmount
	p.TotalEarnings += c.CommissionAmount

	c.Status = model.CommissionConfirmed
	c.ConfirmedAt = &now
	cp := *c
	return &cp, nil
}

func (m *memRepo) ReverseCommission(_ context.Context, id int64, _ string, now time.Time) (*model.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.commissions[id]
	if !ok {
		return nil, repository.ErrCommissionNotFound
	}
	if !c.Status.CanTransition(model.CommissionReversed) {
		return nil, repository.ErrInvalidTransition
	}

	m.partners[c.PartnerID].PendingBalance -= c.CommissionAmount
	c.Status = model.CommissionReversed
	c.ReversedAt = &now
	cp := *c
	return &cp, nil
}

func (m *memRepo) ListCommissions(_ context.Context, partnerID int64) ([]model.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Commission
	for _, c := range m.commissions {
		if c.PartnerID == partnerID {
			res = append(res, *c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) CreateWithdrawal(_ context.Context, partnerID, amount int64, method model.PaymentMethod, info string) (*model.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[partnerID]
	if !ok {
		return nil, repository.ErrPartnerNotFound
	}
	if !p.Active() {
		return nil, repository.ErrPartnerInactive
	}
	if amount > p.AvailableBalance {
		return nil, &repository.InsufficientBalanceError{Available: p.AvailableBalance, Requested: amount}
	}

	w := &model.Withdrawal{
		ID:            m.id(),
		PartnerID:     partnerID,
		Amount:        amount,
		PaymentMethod: method,
		PaymentInfo:   info,
		Status:        model.WithdrawalPending,
	}
	m.withdrawals[w.ID] = w
	p.AvailableBalance -= amount

	cp := *w
	return &cp, nil
}

func (m *memRepo) UpdateWithdrawalStatus(_ context.Context, id int64, next model.WithdrawalStatus, reason string) (*model.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.withdrawals[id]
	if !ok {
		return nil, repository.ErrWithdrawalNotFound
	}
	if !w.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, w.Status, next)
	}

	if next.RestoresBalance() {
		m.partners[w.PartnerID].AvailableBalance += w.Amount
		w.RejectReason = &reason
	}
	w.Status = next
	cp := *w
	return &cp, nil
}

func (m *memRepo) ListWithdrawals(_ context.Context, partnerID int64) ([]model.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Withdrawal
	for _, w := range m.withdrawals {
		if w.PartnerID == partnerID {
			res = append(res, *w)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) IssuedCodes(_ context.Context, candidates []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	taken := make(map[string]bool)
	for _, c := range candidates {
		if _, ok := m.codes[c]; ok || m.allCodesTaken {
			taken[c] = true
		}
	}
	return taken, nil
}

func (m *memRepo) IssueRedemptionCodes(_ context.Context, partnerID int64, codes []string, expiresAt time.Time, table tier.Table) (*model.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[partnerID]
	if !ok {
		return nil, repository.ErrPartnerNotFound
	}
	if !p.Active() {
		return nil, repository.ErrPartnerInactive
	}
	for _, c := range codes {
		if _, ok := m.codes[c]; ok {
			return nil, repository.ErrCodeTaken
		}
	}

	for _, c := range codes {
		m.codes[c] = memCode{partnerID: partnerID, status: model.CodeAvailable, expiresAt: expiresAt}
	}

	p.PrepurchaseCount += int64(len(codes))
	level := table.Promote(p.Tier, p.PrepurchaseCount)
	p.Tier = level.Tier
	p.CommissionRateL1 = level.RateL1
	p.CommissionRateL2 = level.RateL2

	cp := *p
	return &cp, nil
}

func (m *memRepo) ExpireRedemptionCodes(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for code, c := range m.codes {
		if c.status == model.CodeAvailable && !c.expiresAt.After(now) {
			c.status = model.CodeExpired
			m.codes[code] = c
			n++
		}
	}
	return n, nil
}

// partner возвращает снимок партнёра для проверок в тестах.
func (m *memRepo) partner(id int64) model.Partner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.partners[id]
}
