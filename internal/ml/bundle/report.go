package bundle

// Confusion is a binary confusion matrix where positive means needs irrigation
type Confusion struct {
	TruePositive  int `json:"tp"`
	FalsePositive int `json:"fp"`
	TrueNegative  int `json:"tn"`
	FalseNegative int `json:"fn"`
}

// FeatureWeight is the importance of one feature in vector order
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Report summarises how a bundle scored at training time.
// Validation figures are advisory and never block a bundle.
type Report struct {
	Classifier         string          `json:"classifier"`
	Examples           int             `json:"examples"`
	TrainSize          int             `json:"train_size"`
	ValidationSize     int             `json:"validation_size"`
	TrainAccuracy      float64         `json:"accuracy"`
	ValidationAccuracy float64         `json:"val_accuracy"`
	ROCAUC             float64         `json:"roc_auc"`
	Precision          float64         `json:"precision"`
	Recall             float64         `json:"recall"`
	F1                 float64         `json:"f1"`
	Confusion          Confusion       `json:"confusion_matrix"`
	FeatureWeights     []FeatureWeight `json:"feature_weights,omitempty"`
	PositiveRate       float64         `json:"positive_rate"`
}
