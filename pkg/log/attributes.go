// Package log defines standard attribute keys for Gaussian-process and
// parameter-study operations.
//
// Keys follow a hierarchical naming convention ("model.name", "gp.amplitude",
// "study.id") so log lines from the regressor, the optimiser and the study
// runner can be filtered together.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "Regressor", "Optimiser", "Inverter"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "posterior", "search", "evaluate"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// KernelKey names the covariance kernel in use.
	KernelKey = "gp.kernel"
)

// Data Shape
const (
	// SamplesKey indicates the number of training samples.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the dimensionality of the coordinates.
	FeaturesKey = "data.features"

	// QueriesKey indicates the number of query points in a prediction.
	QueriesKey = "data.queries"
)

// Hyperparameters and optimisation progress
const (
	// AmplitudeKey records the fitted kernel amplitude.
	AmplitudeKey = "gp.amplitude"

	// LengthsKey records the fitted per-dimension length-scales.
	LengthsKey = "gp.lengths"

	// NegLogLikelihoodKey records the minimised negative log marginal likelihood.
	NegLogLikelihoodKey = "gp.neg_lml"

	// SelectorKey records the Inverter hyperparameter selection criterion.
	SelectorKey = "gp.selector"

	// IterationKey records the current iteration of an iterative process.
	IterationKey = "training.iteration"

	// EvaluationsKey records the number of objective or criterion evaluations.
	EvaluationsKey = "training.evaluations"

	// ConvergedKey records whether an optimiser met its tolerance.
	ConvergedKey = "training.converged"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// ThreadsKey records the number of workers used for evaluation.
	ThreadsKey = "infra.threads"
)

// Study context
const (
	// StudyIDKey identifies a stored evaluation record.
	StudyIDKey = "study.id"

	// CoordinatesKey records the coordinates of an evaluation.
	CoordinatesKey = "study.coordinates"

	// ValueKey records the objective value of an evaluation.
	ValueKey = "study.value"

	// BestValueKey records the best value observed so far.
	BestValueKey = "study.best_value"

	// SampleKindKey records how a point was chosen ("halton", "grid", "optimiser", ...).
	SampleKindKey = "study.sample"

	// StoreKey names the record store backend.
	StoreKey = "study.store"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationPosterior = "posterior"
	OperationSearch    = "search"
	OperationEvaluate  = "evaluate"
	OperationInvert    = "invert"

	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorSingularMatrix    = "SINGULAR_MATRIX"
	ErrorObjective         = "OBJECTIVE_FAILURE"
)
