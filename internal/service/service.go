// Package service реализует бизнес-логику партнёрской программы: привязку рефералов,
// начисление и подтверждение комиссий, выводы средств и выпуск кодов погашения.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/codegen"
	"github.com/mmeshcher/partner-ledger/internal/lock"
	"github.com/mmeshcher/partner-ledger/internal/metrics"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/tier"
)

var (
	// ErrInvalidCode возвращается для неизвестного или неактивного партнёрского кода.
	ErrInvalidCode = errors.New("invalid partner code")
	// ErrGenerationExhausted возвращается, если не удалось выпустить нужное количество уникальных кодов.
	ErrGenerationExhausted = errors.New("code generation exhausted")
	// ErrInvalidCount возвращается для недопустимого размера пачки кодов.
	ErrInvalidCount = errors.New("code count out of range")
	// ErrInvalidPartnerType возвращается для неизвестного типа партнёрской программы.
	ErrInvalidPartnerType = errors.New("unknown partner type")
	// ErrInvalidPaymentMethod возвращается для неподдерживаемого способа вывода.
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	// ErrPaymentInfoRequired возвращается, если не указаны реквизиты вывода.
	ErrPaymentInfoRequired = errors.New("payment info is required")
	// ErrInvalidOrder возвращается для заказа без номера или с неположительной суммой.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrSettlementInProgress возвращается, если подтверждение уже выполняется другим процессом.
	ErrSettlementInProgress = errors.New("settlement run already in progress")
)

const (
	maxCodeBatch        = 1000
	partnerCodeAttempts = 10
	settlementBatchSize = 500
)

// Repository описывает контракт леджера, используемый сервисом.
// Каждый метод, изменяющий балансы, атомарен.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	CreatePartner(ctx context.Context, userID int64, partnerType model.PartnerType, code string, level tier.Level) (*model.Partner, error)
	GetPartner(ctx context.Context, id int64) (*model.Partner, error)
	SetPartnerStatus(ctx context.Context, id int64, status model.PartnerStatus) error
	GetDirectReferrer(ctx context.Context, userID int64) (*model.Partner, int64, error)
	ListActivePartnersByType(ctx context.Context, partnerType model.PartnerType) ([]model.Partner, error)

	AttributeDirect(ctx context.Context, code string, userID int64) (*model.Referral, *model.Partner, bool, error)
	AttributeUpstream(ctx context.Context, direct *model.Referral, directPartner *model.Partner) (*model.Referral, bool, error)
	ListReferrals(ctx context.Context, partnerID int64) ([]model.Referral, error)

	AccrueCommission(ctx context.Context, c model.Commission) (*model.Commission, bool, error)
	DueCommissionIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error)
	ConfirmCommission(ctx context.Context, id int64, now time.Time) (*model.Commission, error)
	ReverseCommission(ctx context.Context, id int64, reason string, now time.Time) (*model.Commission, error)
	ListCommissions(ctx context.Context, partnerID int64) ([]model.Commission, error)

	CreateWithdrawal(ctx context.Context, partnerID, amount int64, method model.PaymentMethod, info string) (*model.Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, id int64, next model.WithdrawalStatus, reason string) (*model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, partnerID int64) ([]model.Withdrawal, error)

	IssuedCodes(ctx context.Context, candidates []string) (map[string]bool, error)
	IssueRedemptionCodes(ctx context.Context, partnerID int64, codes []string, expiresAt time.Time, table tier.Table) (*model.Partner, error)
	ExpireRedemptionCodes(ctx context.Context, now time.Time) (int64, error)
}

// Catalog отдаёт настройки комиссий продукта по типам партнёров.
type Catalog interface {
	CommissionConfigs(ctx context.Context, productID string) ([]model.CommissionConfig, error)
}

// Options задаёт параметры бизнес-логики.
type Options struct {
	HoldingPeriod     time.Duration
	CodeValidity      time.Duration
	CodeLength        int
	PartnerCodeLength int
	Tiers             tier.Table
}

// DefaultOptions возвращает параметры по умолчанию: удержание 21 день, коды на год.
func DefaultOptions() Options {
	return Options{
		HoldingPeriod:     21 * 24 * time.Hour,
		CodeValidity:      365 * 24 * time.Hour,
		CodeLength:        6,
		PartnerCodeLength: 8,
		Tiers:             tier.DefaultTable(),
	}
}

// Service содержит бизнес-логику партнёрской программы.
type Service struct {
	repo    Repository
	catalog Catalog
	locker  lock.Locker
	metrics *metrics.LedgerMetrics
	logger  *zap.Logger
	opts    Options

	codes        *codegen.Generator
	partnerCodes *codegen.Generator
	now          func() time.Time
}

// NewService создаёт сервис с указанным леджером и каталогом продуктов.
func NewService(repo Repository, catalog Catalog, locker lock.Locker, m *metrics.LedgerMetrics, logger *zap.Logger, opts Options) *Service {
	if locker == nil {
		locker = lock.Noop{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.Tiers) == 0 {
		opts.Tiers = tier.DefaultTable()
	}

	return &Service{
		repo:         repo,
		catalog:      catalog,
		locker:       locker,
		metrics:      m,
		logger:       logger,
		opts:         opts,
		codes:        codegen.New(opts.CodeLength),
		partnerCodes: codegen.New(opts.PartnerCodeLength),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Ping проверяет доступность леджера.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
