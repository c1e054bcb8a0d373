package epoch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timewave-computer/causality-sub004/internal/archive"
	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/platform/metrics"
	"github.com/timewave-computer/causality-sub004/internal/register"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

// collector is the owner of summary registers.
const collectorOwner = domain.Owner("garbage-collector")

// GroupFunc assigns a consumed register to a summary group.
type GroupFunc func(*domain.Register) string

// Collector archives consumed registers from old epochs, replacing them with
// compact verification stubs. It only ever touches Consumed registers, so it
// runs concurrently with live operations without extra coordination.
type Collector struct {
	registers register.Store
	archive   archive.Archive
	epochs    *Manager
	policy    domain.ArchivalPolicy
	groupFn   GroupFunc
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CollectorOption {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) CollectorOption {
	return func(c *Collector) { c.metrics = m }
}

// WithGroupFunc installs the caller-supplied grouping used when the policy's
// summary strategy is SummarizeCustom.
func WithGroupFunc(fn GroupFunc) CollectorOption {
	return func(c *Collector) { c.groupFn = fn }
}

// NewCollector constructs a garbage collector under the given policy.
func NewCollector(registers register.Store, arch archive.Archive, epochs *Manager, policy domain.ArchivalPolicy, opts ...CollectorOption) (*Collector, error) {
	if registers == nil {
		return nil, fmt.Errorf("register store is required")
	}
	if arch == nil {
		return nil, fmt.Errorf("archive is required")
	}
	if epochs == nil {
		return nil, fmt.Errorf("epoch manager is required")
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = 128
	}
	c := &Collector{
		registers: registers,
		archive:   arch,
		epochs:    epochs,
		policy:    policy,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if policy.SummaryStrategy == domain.SummarizeCustom && c.groupFn == nil {
		return nil, fmt.Errorf("custom summary strategy requires a group function")
	}
	return c, nil
}

// Result reports one GC pass.
type Result struct {
	Epoch      domain.EpochID
	Archived   int
	Failed     int
	Tombstoned int
	Summaries  []domain.RegisterID
}

// Collect runs one GC pass over the epoch. Registers whose archival fails
// stay Consumed and are retried on the next pass.
func (c *Collector) Collect(ctx context.Context, target domain.EpochID) (*Result, error) {
	current := c.epochs.Current()
	if current < target || uint64(current-target) < c.policy.PruneAfter {
		return nil, ledgererrors.Newf(ledgererrors.CodeEpochTooRecent,
			"epoch %d is within the prune window (current %d, prune after %d)",
			target, current, c.policy.PruneAfter)
	}

	result := &Result{Epoch: target}
	if c.metrics != nil {
		c.metrics.GCRuns.Inc()
	}

	for {
		batchStart := time.Now()
		batch, err := c.registers.ConsumedInEpoch(ctx, target, c.policy.BatchSize)
		if err != nil {
			return result, ledgererrors.Wrap(err, ledgererrors.CodeArchiveFailure, "list consumed registers")
		}
		if len(batch) == 0 {
			break
		}

		archived, failed, summaries, err := c.collectBatch(ctx, target, batch)
		result.Archived += archived
		result.Failed += failed
		result.Summaries = append(result.Summaries, summaries...)
		if c.metrics != nil {
			c.metrics.GCBatchDuration.Observe(time.Since(batchStart).Seconds())
			c.metrics.RegistersArchived.Add(float64(archived))
		}
		if err != nil {
			return result, err
		}
		if archived == 0 {
			// Everything left in the epoch failed this pass; stop rather
			// than spin, the next pass retries.
			break
		}
	}

	result.Tombstoned = c.retire(ctx, current)

	c.logger.Info("gc pass complete",
		"epoch", uint64(target), "archived", result.Archived,
		"failed", result.Failed, "tombstoned", result.Tombstoned)
	return result, nil
}

// retire tombstones Archived registers whose retention window has elapsed.
// A register from epoch E becomes archivable after PruneAfter epochs and its
// body is kept for KeepEpochs more; past that, only the stub's hash remains.
func (c *Collector) retire(ctx context.Context, current domain.EpochID) int {
	retain := c.policy.PruneAfter + c.policy.KeepEpochs
	if uint64(current) < retain {
		return 0
	}
	cutoff := current - domain.EpochID(retain)

	total := 0
	for {
		ids, err := c.registers.ArchivedThrough(ctx, cutoff, c.policy.BatchSize)
		if err != nil {
			c.logger.Warn("list retired archives", "error", err)
			return total
		}
		if len(ids) == 0 {
			return total
		}
		tombstoned := 0
		for _, id := range ids {
			if _, err := c.registers.Transition(ctx, id, domain.Tombstone()); err != nil {
				c.logger.Warn("tombstone register", "register_id", string(id), "error", err)
				continue
			}
			tombstoned++
		}
		total += tombstoned
		if tombstoned == 0 {
			// Everything left failed this pass; stop rather than spin.
			return total
		}
	}
}

// collectBatch summarizes one batch by group, persists the summaries, then
// archives and stubs each member.
func (c *Collector) collectBatch(ctx context.Context, target domain.EpochID, batch []*domain.Register) (archived, failed int, summaryIDs []domain.RegisterID, err error) {
	groups := make(map[string][]*domain.Register)
	for _, reg := range batch {
		key := c.groupKey(reg)
		groups[key] = append(groups[key], reg)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		members := groups[key]
		summaryID, sumErr := c.persistSummary(ctx, target, key, members)
		if sumErr != nil {
			failed += len(members)
			c.logger.Warn("persist summary", "group", key, "error", sumErr)
			continue
		}
		summaryIDs = append(summaryIDs, summaryID)

		ok, archErr := c.archiveGroup(ctx, summaryID, members)
		archived += ok
		failed += len(members) - ok
		if archErr != nil {
			c.logger.Warn("archive group", "group", key, "error", archErr)
		}
	}
	return archived, failed, summaryIDs, nil
}

// archiveGroup archives members concurrently. Each member is only stubbed
// after its archive record verifies, so a crash mid-group leaves registers
// Consumed, never half-replaced.
func (c *Collector) archiveGroup(ctx context.Context, summaryID domain.RegisterID, members []*domain.Register) (int, error) {
	results := make([]bool, len(members))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, reg := range members {
		g.Go(func() error {
			if err := c.archiveOne(gctx, summaryID, reg); err != nil {
				c.logger.Warn("archive register",
					"register_id", string(reg.ID), "error", err)
				return nil // keep going; this register retries next pass
			}
			results[i] = true
			return nil
		})
	}
	err := g.Wait()

	archived := 0
	for _, ok := range results {
		if ok {
			archived++
		}
	}
	return archived, err
}

func (c *Collector) archiveOne(ctx context.Context, summaryID domain.RegisterID, reg *domain.Register) error {
	record, err := c.archive.Put(ctx, reg)
	if err != nil {
		return ledgererrors.Wrap(err, ledgererrors.CodeArchiveFailure, "archive write")
	}
	ok, err := c.archive.Verify(ctx, record.ArchiveID)
	if err != nil || !ok {
		return ledgererrors.Wrap(err, ledgererrors.CodeArchiveFailure, "archive verification")
	}

	if _, err := c.registers.Transition(ctx, reg.ID, domain.Archived(record.ArchiveID)); err != nil {
		return ledgererrors.Wrap(err, ledgererrors.CodeArchiveFailure, "mark register archived")
	}
	stub := domain.RegisterStub{
		RegisterID:       reg.ID,
		ArchiveID:        record.ArchiveID,
		SummaryID:        summaryID,
		VerificationHash: record.IntegrityHash,
	}
	if err := c.registers.PutStub(ctx, stub); err != nil {
		return ledgererrors.Wrap(err, ledgererrors.CodeArchiveFailure, "store register stub")
	}
	return nil
}

// persistSummary writes the group's compact summary as a new register in the
// current epoch.
func (c *Collector) persistSummary(ctx context.Context, target domain.EpochID, key string, members []*domain.Register) (domain.RegisterID, error) {
	summary := domain.RegisterSummary{
		GroupKey: key,
		Epoch:    target,
		Count:    len(members),
		Net:      make(map[domain.ResourceClass]int64),
	}
	for _, reg := range members {
		summary.Members = append(summary.Members, reg.ID)
		for class, amount := range reg.Contents.Amounts() {
			summary.Net[class] += amount
		}
	}
	if len(summary.Net) == 0 {
		summary.Net = nil
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return "", ledgererrors.Wrap(err, ledgererrors.CodeArchiveFailure, "encode summary")
	}
	reg, err := c.registers.Create(ctx, domain.DataObject{Data: payload}, collectorOwner, c.epochs.Current(),
		map[string]string{"summary_group": key, "summary_epoch": fmt.Sprint(uint64(target))})
	if err != nil {
		return "", ledgererrors.Wrap(err, ledgererrors.CodeArchiveFailure, "persist summary register")
	}
	return reg.ID, nil
}

// groupKey applies the configured summary strategy.
func (c *Collector) groupKey(reg *domain.Register) string {
	switch c.policy.SummaryStrategy {
	case domain.SummarizeByOwner:
		return "owner:" + string(reg.Owner)
	case domain.SummarizeByKind:
		return "kind:" + string(reg.Contents.Kind())
	case domain.SummarizeCustom:
		return c.groupFn(reg)
	default:
		// By resource: one group per class set, single-class contents being
		// the common case.
		classes := make([]string, 0, 1)
		for class := range reg.Contents.Amounts() {
			classes = append(classes, string(class))
		}
		if len(classes) == 0 {
			return "resource:none"
		}
		sort.Strings(classes)
		key := "resource:" + classes[0]
		for _, class := range classes[1:] {
			key += "+" + class
		}
		return key
	}
}
