// Package main is the training entry point: it tunes, fits, evaluates and
// persists every configured model family from the repository dataset.
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ilnaes/github-analysis/internal/config"
	"github.com/ilnaes/github-analysis/pkg/baseline"
	"github.com/ilnaes/github-analysis/pkg/classifier"
	"github.com/ilnaes/github-analysis/pkg/dataset"
	"github.com/ilnaes/github-analysis/pkg/evaluate"
	"github.com/ilnaes/github-analysis/pkg/feature"
	"github.com/ilnaes/github-analysis/pkg/modelstore"
	"github.com/ilnaes/github-analysis/pkg/runstore"
	"github.com/ilnaes/github-analysis/pkg/transformer"
	"github.com/ilnaes/github-analysis/pkg/tuning"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx := context.Background()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
}

type trainer struct {
	cfg    *config.Config
	stores []modelstore.Store
	local  *modelstore.LocalStore

	repos      []dataset.Repo
	enc        *dataset.LabelEncoder
	trainTexts []string
	trainY     []int
	testTexts  []string
	testY      []int

	grids     map[string]tuning.Grid
	tuned     map[string]*tuning.Result
	reports   map[string]*evaluate.Report
	params    map[string]classifier.Params
	baselines []baseline.Result
}

// textPredictor is the prediction surface every trained family exposes.
type textPredictor interface {
	Predict(texts []string) ([]int, error)
}

func run(ctx context.Context, cfg *config.Config) error {
	startedAt := time.Now()
	runID := uuid.New().String()
	log.Info().Str("runId", runID).Str("dataset", cfg.DatasetCSV).Msg("starting training run")

	families, err := parseFamilies(cfg.Families)
	if err != nil {
		return err
	}

	t := &trainer{
		cfg:     cfg,
		tuned:   make(map[string]*tuning.Result),
		reports: make(map[string]*evaluate.Report),
		params:  make(map[string]classifier.Params),
	}
	if err := t.loadData(); err != nil {
		return err
	}
	if err := t.openStores(ctx); err != nil {
		return err
	}
	defer t.closeStores()

	t.grids, err = tuning.LoadRegistry(cfg.GridDir)
	if err != nil {
		return fmt.Errorf("load tuning grids: %w", err)
	}

	for _, family := range families {
		switch family {
		case classifier.FamilyKNN, classifier.FamilyLasso, classifier.FamilyGBT:
			err = t.trainClassical(ctx, family)
		case classifier.FamilyStacking:
			err = t.trainStacking(ctx)
		case "transformer":
			err = t.trainTransformer()
		}
		if err != nil {
			return err
		}
	}

	if cfg.RunBaselines {
		t.runBaselines()
	}

	snapshotKey := ""
	if cfg.WriteSnapshot {
		snapshotKey = t.writeSnapshot(ctx, runID)
	}
	if err := t.finishRun(ctx, runID, startedAt, families, snapshotKey); err != nil {
		return err
	}

	log.Info().Str("runId", runID).Dur("elapsed", time.Since(startedAt)).Msg("training run complete")
	return nil
}

func parseFamilies(raw string) ([]string, error) {
	known := map[string]bool{
		classifier.FamilyKNN:      true,
		classifier.FamilyLasso:    true,
		classifier.FamilyGBT:      true,
		classifier.FamilyStacking: true,
		"transformer":             true,
	}
	var families []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(raw, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		if !known[f] {
			return nil, fmt.Errorf("unknown model family %q", f)
		}
		seen[f] = true
		families = append(families, f)
	}
	if len(families) == 0 {
		return nil, fmt.Errorf("no model families configured")
	}
	return families, nil
}

func (t *trainer) loadData() error {
	repos, stats, err := dataset.LoadCSV(t.cfg.DatasetCSV)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return fmt.Errorf("dataset %s has no usable rows", t.cfg.DatasetCSV)
	}
	log.Info().Int("rows", stats.Rows).Int("kept", stats.Kept).
		Int("skipped", stats.SkippedMissing+stats.SkippedBadRow).Msg("dataset loaded")

	t.repos = repos
	t.enc = dataset.FitLabels(repos, t.cfg.TopLanguages)
	y := t.enc.Encode(repos)
	texts := dataset.Descriptions(repos)

	trainIdx, testIdx := dataset.TrainTestSplit(y, t.cfg.TestFraction, t.cfg.Seed)
	t.trainTexts = dataset.SubsetStrings(texts, trainIdx)
	t.trainY = dataset.SubsetLabels(y, trainIdx)
	t.testTexts = dataset.SubsetStrings(texts, testIdx)
	t.testY = dataset.SubsetLabels(y, testIdx)

	log.Info().Int("train", len(trainIdx)).Int("test", len(testIdx)).
		Strs("labels", t.enc.Classes).Msg("dataset split")
	return nil
}

func (t *trainer) openStores(ctx context.Context) error {
	local, err := modelstore.NewLocalStore(t.cfg.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	t.local = local
	t.stores = []modelstore.Store{local}

	if t.cfg.MinioEndpoint != "" {
		mirror, err := modelstore.NewMinioStore(ctx, modelstore.MinioOptions{
			Endpoint:  t.cfg.MinioEndpoint,
			AccessKey: t.cfg.MinioAccessKey,
			SecretKey: t.cfg.MinioSecretKey,
			Bucket:    t.cfg.MinioBucket,
			Region:    t.cfg.MinioRegion,
			UseSSL:    t.cfg.MinioUseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("artifact mirror disabled")
		} else {
			log.Info().Str("endpoint", t.cfg.MinioEndpoint).Str("bucket", t.cfg.MinioBucket).
				Msg("mirroring artifacts to object storage")
			t.stores = append(t.stores, mirror)
		}
	}
	return nil
}

func (t *trainer) closeStores() {
	for _, s := range t.stores {
		_ = s.Close()
	}
}

// saveAll writes through every store. The first store is authoritative, the
// rest are mirrors whose failures only warn.
func (t *trainer) saveAll(key string, put func(modelstore.Store) error) error {
	for i, s := range t.stores {
		if err := put(s); err != nil {
			if i == 0 {
				return fmt.Errorf("write %s: %w", key, err)
			}
			log.Warn().Err(err).Str("key", key).Msg("mirror write failed")
		}
	}
	return nil
}

func (t *trainer) putAll(ctx context.Context, key string, value any) error {
	return t.saveAll(key, func(s modelstore.Store) error {
		return modelstore.PutJSON(ctx, s, key, value)
	})
}

// ensureTuned returns the family's tuning result, reloading a stored sweep
// unless a retune is forced.
func (t *trainer) ensureTuned(ctx context.Context, family string) (*tuning.Result, error) {
	if res, ok := t.tuned[family]; ok {
		return res, nil
	}
	if !t.cfg.Retune {
		var res tuning.Result
		found, err := modelstore.GetJSON(ctx, t.local, modelstore.TuningKey(family), &res)
		if err != nil {
			return nil, err
		}
		if found && res.Family == family && len(res.Trials) > 0 {
			log.Info().Str("family", family).Interface("params", res.Best).
				Msg("reusing stored tuning result")
			t.tuned[family] = &res
			return &res, nil
		}
	}

	grid, ok := t.grids[family]
	if !ok {
		return nil, fmt.Errorf("no tuning grid for family %q", family)
	}
	log.Info().Str("family", family).Int("combinations", len(grid.Combinations())).
		Int("folds", t.cfg.CVFolds).Msg("tuning family")

	res, err := tuning.TuneFamily(family, grid, t.trainTexts, t.trainY, tuning.Options{
		Folds:   t.cfg.CVFolds,
		Seed:    t.cfg.Seed,
		Classes: t.enc.NumClasses(),
		Progress: func(done, total int) {
			log.Debug().Str("family", family).Int("done", done).Int("total", total).
				Msg("trial finished")
		},
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("family", family).Interface("params", res.Best).
		Float64("cvAccuracy", res.Trials[0].MeanAcc).Msg("tuning complete")

	if err := t.putAll(ctx, modelstore.TuningKey(family), res); err != nil {
		return nil, err
	}
	t.tuned[family] = res
	return res, nil
}

func (t *trainer) evaluateModel(name string, m textPredictor) (*evaluate.Report, error) {
	pred, err := m.Predict(t.testTexts)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", name, err)
	}
	rep, err := evaluate.NewReport(pred, t.testY, t.enc.Classes)
	if err != nil {
		return nil, err
	}
	t.reports[name] = rep
	fmt.Printf("\n%s holdout report\n%s\n", name, rep)
	return rep, nil
}

func (t *trainer) trainClassical(ctx context.Context, family string) error {
	res, err := t.ensureTuned(ctx, family)
	if err != nil {
		return err
	}
	pipe, err := classifier.NewPipeline(family, res.Best, t.enc.NumClasses(), t.cfg.Seed)
	if err != nil {
		return err
	}
	if err := pipe.Fit(t.trainTexts, t.trainY); err != nil {
		return fmt.Errorf("fit %s: %w", family, err)
	}
	rep, err := t.evaluateModel(family, pipe)
	if err != nil {
		return err
	}
	t.params[family] = res.Best

	err = t.saveAll(modelstore.ModelKey(family), func(s modelstore.Store) error {
		return modelstore.SavePipeline(ctx, s, pipe, t.enc.Classes)
	})
	if err != nil {
		return err
	}
	log.Info().Str("family", family).Float64("testAccuracy", rep.Accuracy).Msg("model saved")
	return nil
}

func (t *trainer) trainStacking(ctx context.Context) error {
	memberFamilies := []string{classifier.FamilyKNN, classifier.FamilyLasso, classifier.FamilyGBT}
	members := make([]*classifier.Pipeline, 0, len(memberFamilies))
	for _, family := range memberFamilies {
		res, err := t.ensureTuned(ctx, family)
		if err != nil {
			return err
		}
		pipe, err := classifier.NewPipeline(family, res.Best, t.enc.NumClasses(), t.cfg.Seed)
		if err != nil {
			return err
		}
		members = append(members, pipe)
	}

	st := classifier.NewStacking(members, t.cfg.CVFolds, t.cfg.Seed)
	if err := st.Fit(t.trainTexts, t.trainY); err != nil {
		return fmt.Errorf("fit stacking: %w", err)
	}
	rep, err := t.evaluateModel(classifier.FamilyStacking, st)
	if err != nil {
		return err
	}

	bestMember := 0.0
	for i, m := range st.Members {
		pred, err := m.Predict(t.testTexts)
		if err != nil {
			return fmt.Errorf("predict member %s: %w", memberFamilies[i], err)
		}
		acc := evaluate.Accuracy(pred, t.testY)
		log.Info().Str("member", memberFamilies[i]).Float64("testAccuracy", acc).
			Msg("stacking member holdout")
		if acc > bestMember {
			bestMember = acc
		}
	}
	if rep.Accuracy+0.02 < bestMember {
		log.Warn().Float64("stacking", rep.Accuracy).Float64("bestMember", bestMember).
			Msg("stacking trails its best member on the holdout")
	}

	return t.saveAll(modelstore.ModelKey(classifier.FamilyStacking), func(s modelstore.Store) error {
		return modelstore.SaveStacking(ctx, s, st, t.enc.Classes)
	})
}

func (t *trainer) trainTransformer() error {
	model, err := transformer.NewModel(transformer.Config{
		Labels: t.enc.Classes,
		Seed:   t.cfg.Seed,
	}, t.trainTexts)
	if err != nil {
		return err
	}
	err = model.Train(t.trainTexts, t.trainY, t.testTexts, t.testY,
		func(epoch int, trainLoss, valAcc float64) {
			log.Info().Int("epoch", epoch).Float64("loss", trainLoss).
				Float64("valAccuracy", valAcc).Msg("transformer epoch")
		})
	if err != nil {
		return fmt.Errorf("train transformer: %w", err)
	}
	if _, err := t.evaluateModel("transformer", model); err != nil {
		return err
	}
	if err := model.SaveDir(t.cfg.TransformerDir); err != nil {
		return fmt.Errorf("save transformer: %w", err)
	}
	log.Info().Str("dir", t.cfg.TransformerDir).Msg("transformer saved")
	return nil
}

// runBaselines scores golearn reference models on the same features. They
// are diagnostics, so failures warn instead of aborting the run.
func (t *trainer) runBaselines() {
	maxTokens, neighbors := 300, 0
	if res, ok := t.tuned[classifier.FamilyKNN]; ok {
		maxTokens = res.Best.MaxTokens
		neighbors = res.Best.Neighbors
	}

	texts := append(append([]string{}, t.trainTexts...), t.testTexts...)
	y := append(append([]int{}, t.trainY...), t.testY...)
	vec := feature.NewVectorizer(maxTokens)
	X, err := vec.FitTransform(texts)
	if err != nil {
		log.Warn().Err(err).Msg("baselines skipped")
		return
	}

	dir := filepath.Join(t.cfg.ArtifactsDir, "baseline")
	results, err := baseline.Run(dir, X, y, t.enc.Classes, neighbors, t.cfg.TestFraction)
	if err != nil {
		log.Warn().Err(err).Msg("baselines skipped")
		return
	}
	t.baselines = results
	for _, r := range results {
		log.Info().Str("baseline", r.Name).Float64("accuracy", r.Accuracy).
			Msg("reference baseline")
	}
}

func (t *trainer) writeSnapshot(ctx context.Context, runID string) string {
	blob, err := dataset.SnapshotParquet(t.repos)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot skipped")
		return ""
	}
	key := dataset.SnapshotKey(runID, time.Now())
	err = t.saveAll(key, func(s modelstore.Store) error {
		return s.Put(ctx, key, blob)
	})
	if err != nil {
		log.Warn().Err(err).Msg("snapshot write failed")
		return ""
	}
	log.Info().Str("key", key).Int("bytes", len(blob)).Msg("dataset snapshot written")
	return key
}

func (t *trainer) finishRun(ctx context.Context, runID string, startedAt time.Time, families []string, snapshotKey string) error {
	accuracy := make(map[string]float64, len(t.reports))
	for name, rep := range t.reports {
		accuracy[name] = rep.Accuracy
	}

	manifest := modelstore.Manifest{
		RunID:        runID,
		CreatedAt:    time.Now(),
		Labels:       t.enc.Classes,
		Families:     families,
		BestParams:   t.params,
		TestAccuracy: accuracy,
		SnapshotKey:  snapshotKey,
	}
	if err := t.putAll(ctx, modelstore.ManifestKey, manifest); err != nil {
		return err
	}

	metrics := map[string]any{"reports": t.reports}
	if len(t.baselines) > 0 {
		metrics["baselines"] = t.baselines
	}
	if err := t.putAll(ctx, modelstore.MetricsKey(runID), metrics); err != nil {
		return err
	}

	if t.cfg.DatabaseURL == "" {
		log.Info().Msg("run registry disabled")
		return nil
	}
	runs, err := runstore.New(t.cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("run registry unavailable")
		return nil
	}
	defer runs.Close()

	err = runs.RecordRun(ctx, runstore.Run{
		ID:          runID,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		DatasetRows: len(t.repos),
		Families:    families,
		Labels:      t.enc.Classes,
		Metrics:     accuracy,
		Params:      t.params,
	})
	if err != nil {
		log.Warn().Err(err).Msg("run not recorded")
		return nil
	}
	log.Info().Str("runId", runID).Msg("run recorded")
	return nil
}
