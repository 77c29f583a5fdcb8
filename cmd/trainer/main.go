// Command trainer builds model bundles offline.
//
//	trainer train -data irrigation.csv -out models/irrigation_bundle.json
//	trainer import-onnx -model model.onnx -preprocessing preprocessing.json -out models/irrigation_bundle.json
//	trainer token -subject ci-nightly
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"irrigation/internal/adapters/config"
	"irrigation/internal/ml"
	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	mltraining "irrigation/internal/ml/training"
	"irrigation/pkg/auth"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get().Component("trainer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "train":
		err = runTrain(ctx, cfg, os.Args[2:], log)
	case "import-onnx":
		err = runImportONNX(ctx, cfg, os.Args[2:], log)
	case "token":
		err = runToken(cfg, os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Errorw("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: trainer <train|import-onnx|token> [flags]")
}

func runTrain(ctx context.Context, cfg *config.Config, args []string, log *logger.Logger) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dataPath := fs.String("data", "", "CSV dataset (required)")
	out := fs.String("out", cfg.Model.Path, "Bundle file to write")
	encoding := fs.String("encoding", cfg.Training.Encoding, "Categorical input convention: raw or coded")
	withCropID := fs.Bool("crop-id", cfg.Training.IncludeCropID, "Include crop_id as a feature")
	split := fs.Float64("validation-split", cfg.Training.ValidationSplit, "Held-out fraction")
	seed := fs.Int64("seed", cfg.Training.Seed, "Split seed")
	epochs := fs.Int("epochs", cfg.Training.Epochs, "Gradient descent epochs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" {
		fs.Usage()
		return errors.NewValidationError("data", "flag is required", nil)
	}

	f, err := os.Open(*dataPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", *dataPath)
	}
	defer f.Close()

	ds, err := mltraining.ParseCSV(f)
	if err != nil {
		return err
	}

	opts := mltraining.Options{
		Classifier:      cfg.Training.Classifier,
		Encoding:        features.Encoding(*encoding),
		IncludeCropID:   *withCropID,
		ValidationSplit: *split,
		Seed:            *seed,
		MinExamples:     cfg.Training.MinExamples,
		Hyper: classifier.Options{
			Epochs:       *epochs,
			LearningRate: cfg.Training.LearningRate,
			L2:           cfg.Training.L2,
		},
	}
	pipeline, err := mltraining.NewPipeline(opts)
	if err != nil {
		return err
	}

	b, err := pipeline.Fit(ctx, ds)
	if err != nil {
		return err
	}

	if err := bundle.NewFileStore(*out).Save(ctx, b); err != nil {
		return err
	}

	fields := []interface{}{"bundle_id", b.ID(), "path", *out, "features", b.Order()}
	if r := b.Report(); r != nil {
		fields = append(fields,
			"accuracy", r.TrainAccuracy,
			"val_accuracy", r.ValidationAccuracy,
			"roc_auc", r.ROCAUC,
		)
	}
	log.Infow("✅ Bundle trained", fields...)
	return nil
}

func runImportONNX(ctx context.Context, cfg *config.Config, args []string, log *logger.Logger) error {
	fs := flag.NewFlagSet("import-onnx", flag.ExitOnError)
	modelPath := fs.String("model", "", "ONNX model file (required)")
	prepPath := fs.String("preprocessing", "", "Preprocessing JSON exported with the model (required)")
	out := fs.String("out", cfg.Model.Path, "Bundle file to write")
	library := fs.String("onnx-library", cfg.Model.ONNXLibraryPath, "Path to the ONNX Runtime shared library")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelPath == "" || *prepPath == "" {
		fs.Usage()
		return errors.NewValidationError("model", "-model and -preprocessing are required", nil)
	}

	prepData, err := os.ReadFile(*prepPath)
	if err != nil {
		return errors.Wrapf(err, "read %s", *prepPath)
	}
	prep, err := parsePreprocessing(prepData)
	if err != nil {
		return err
	}

	model, err := os.ReadFile(*modelPath)
	if err != nil {
		return errors.Wrapf(err, "read %s", *modelPath)
	}

	if err := ml.InitRuntime(*library); err != nil {
		return err
	}

	parts, err := prep.params()
	if err != nil {
		return err
	}
	clf, err := classifier.NewONNX(model, prep.InputName, prep.OutputName, parts.Schema.Len())
	if err != nil {
		return err
	}
	parts.Classifier = clf

	b, err := bundle.New(parts)
	if err != nil {
		return err
	}

	if err := bundle.NewFileStore(*out).Save(ctx, b); err != nil {
		return err
	}

	log.Infow("✅ ONNX model imported",
		"bundle_id", b.ID(),
		"path", *out,
		"features", b.Order(),
		"encoding", b.Schema().Encoding,
	)
	return nil
}

// runToken mints an operator token for POST /retrain and prints it
func runToken(cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "Operator or job the token is issued to (required)")
	ttl := fs.Duration("ttl", cfg.Auth.TokenTTL, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !cfg.Auth.Enabled() {
		return errors.NewValidationError("HTTP_ADMIN_JWT_SECRET", "must be set to mint tokens", nil)
	}
	if *ttl <= 0 || *ttl > 365*24*time.Hour {
		return errors.NewValidationError("ttl", "must be between 0 and 1 year", ttl.String())
	}

	token, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *ttl).GenerateToken(*subject, auth.ScopeRetrain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
