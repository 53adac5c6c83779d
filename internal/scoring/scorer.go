// Package scoring turns a clinical feature record into a category label.
package scoring

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
)

// Scorer is the black-box model behind a catalog entry.
type Scorer interface {
	Predict(f models.Features) (int, error)
}

var ErrUnsupportedModel = errors.New("scoring: unsupported model type")

// Encode maps a record onto the numeric vector the trees are trained on.
// Unknown categorical values are an error rather than a silent default.
func Encode(f models.Features) ([]float64, error) {
	drug, err := category("Drug", f.Drug, map[string]float64{"D-penicillamine": 0, "Placebo": 1})
	if err != nil {
		return nil, err
	}
	sex, err := category("Sex", f.Sex, map[string]float64{"M": 0, "F": 1})
	if err != nil {
		return nil, err
	}
	flags := make([]float64, 3)
	for i, v := range []struct{ name, value string }{
		{"Ascites", f.Ascites}, {"Hepatomegaly", f.Hepatomegaly}, {"Spiders", f.Spiders},
	} {
		if flags[i], err = category(v.name, v.value, yesNo); err != nil {
			return nil, err
		}
	}
	edema, err := category("Edema", f.Edema, map[string]float64{"N": 0, "S": 0.5, "Y": 1})
	if err != nil {
		return nil, err
	}

	return []float64{
		float64(f.NDays), drug, float64(f.Age), sex, flags[0], flags[1], flags[2], edema,
		f.Bilirubin, f.Cholesterol, f.Albumin, f.Copper, f.AlkPhos, f.SGOT, f.Tryglicerides,
		f.Platelets, f.Prothrombin, float64(f.Stage),
	}, nil
}

var yesNo = map[string]float64{"N": 0, "Y": 1}

func category(field, value string, codes map[string]float64) (float64, error) {
	v, ok := codes[value]
	if !ok {
		return 0, fmt.Errorf("scoring: unknown %s value %q", field, value)
	}
	return v, nil
}

// Load reads a model of the given type from path.
func Load(modelType, path string) (Scorer, error) {
	switch modelType {
	case "decision_tree":
		tree := &DecisionTree{}
		if err := tree.Load(path); err != nil {
			return nil, err
		}
		return tree, nil
	case "forest":
		forest := &Forest{}
		if err := forest.Load(path); err != nil {
			return nil, err
		}
		return forest, nil
	case "baseline", "":
		return Baseline(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, modelType)
	}
}
