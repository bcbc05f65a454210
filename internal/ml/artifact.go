package ml

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"trading-simv1/internal/model"
)

// Artifact is a fitted scaler and classifier persisted as one unit.
type Artifact struct {
	Kind          Kind             `json:"kind"`
	FeatureOrder  []string         `json:"feature_order"`
	Scaler        *StandardScaler  `json:"scaler"`
	GBT           *GradientBoosted `json:"gbt,omitempty"`
	Forest        *RandomForest    `json:"forest,omitempty"`
	Symbol        string           `json:"symbol"`
	TrainedAt     time.Time        `json:"trained_at"`
	Rows          int              `json:"rows"`
	Examples      int              `json:"examples"`
	TrainAccuracy float64          `json:"train_accuracy"`
}

func newArtifact(clf Classifier, scaler *StandardScaler) (*Artifact, error) {
	a := &Artifact{
		Kind:         clf.Kind(),
		FeatureOrder: slices.Clone(FeatureOrder),
		Scaler:       scaler,
	}
	switch c := clf.(type) {
	case *GradientBoosted:
		a.GBT = c
	case *RandomForest:
		a.Forest = c
	default:
		return nil, fmt.Errorf("ml: unsupported classifier %T", clf)
	}
	return a, nil
}

// Classifier returns the fitted classifier stored in the artifact.
func (a *Artifact) Classifier() (Classifier, error) {
	switch a.Kind {
	case KindGBT:
		if a.GBT != nil {
			return a.GBT, nil
		}
	case KindForest:
		if a.Forest != nil {
			return a.Forest, nil
		}
	}
	return nil, fmt.Errorf("%w: no %q classifier in artifact", model.ErrArtifactCorrupt, a.Kind)
}

// Validate checks that the scaler, classifier and feature order agree.
func (a *Artifact) Validate() error {
	if !slices.Equal(a.FeatureOrder, FeatureOrder) {
		return fmt.Errorf("%w: feature order %v does not match %v", model.ErrArtifactCorrupt, a.FeatureOrder, FeatureOrder)
	}
	width := len(FeatureOrder)
	if a.Scaler == nil || len(a.Scaler.Mean) != width || len(a.Scaler.Std) != width {
		return fmt.Errorf("%w: scaler width mismatch", model.ErrArtifactCorrupt)
	}
	for j, s := range a.Scaler.Std {
		if s == 0 {
			return fmt.Errorf("%w: scaler std[%d] is zero", model.ErrArtifactCorrupt, j)
		}
	}

	var trees []Tree
	switch a.Kind {
	case KindGBT:
		if a.GBT == nil || a.GBT.Features != width {
			return fmt.Errorf("%w: gbt classifier missing or width mismatch", model.ErrArtifactCorrupt)
		}
		trees = a.GBT.Trees
	case KindForest:
		if a.Forest == nil || a.Forest.Features != width || len(a.Forest.Trees) == 0 {
			return fmt.Errorf("%w: forest classifier missing or width mismatch", model.ErrArtifactCorrupt)
		}
		trees = a.Forest.Trees
	default:
		return fmt.Errorf("%w: unknown kind %q", model.ErrArtifactCorrupt, a.Kind)
	}
	for i := range trees {
		if err := trees[i].validate(width); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// Marshal encodes the artifact as JSON.
func (a *Artifact) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalArtifact decodes and validates an artifact.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrArtifactCorrupt, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
