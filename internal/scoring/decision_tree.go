package scoring

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
)

type DecisionTree struct {
	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

// NewDecisionTree wraps already-built nodes; node 0 is the root.
func NewDecisionTree(nodes []TreeNode) *DecisionTree {
	return &DecisionTree{nodes: nodes}
}

func (dt *DecisionTree) Predict(f models.Features) (int, error) {
	vec, err := Encode(f)
	if err != nil {
		return 0, err
	}
	return dt.predictVector(vec)
}

func (dt *DecisionTree) predictVector(features []float64) (int, error) {
	if len(dt.nodes) == 0 {
		return 0, errors.New("scoring: model not loaded")
	}
	idx := 0
	// a tree can't be deeper than its node count; more steps means a cycle
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("scoring: feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errors.New("scoring: invalid tree state")
		}
	}
	return 0, errors.New("scoring: tree contains a cycle")
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New("scoring: empty tree")
	}
	dt.nodes = nodes
	return nil
}

// Forest is a majority vote over decision trees; ties go to the lowest label.
type Forest struct {
	trees []*DecisionTree
}

func NewForest(trees ...*DecisionTree) *Forest {
	return &Forest{trees: trees}
}

func (fo *Forest) Predict(f models.Features) (int, error) {
	if len(fo.trees) == 0 {
		return 0, errors.New("scoring: model not loaded")
	}
	vec, err := Encode(f)
	if err != nil {
		return 0, err
	}
	votes := make(map[int]int)
	for _, tree := range fo.trees {
		label, err := tree.predictVector(vec)
		if err != nil {
			return 0, err
		}
		votes[label]++
	}
	best, bestVotes := 0, -1
	for label, n := range votes {
		if n > bestVotes || (n == bestVotes && label < best) {
			best, bestVotes = label, n
		}
	}
	return best, nil
}

// Load reads {"trees": [[node, ...], ...]}.
func (fo *Forest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file struct {
		Trees [][]TreeNode `json:"trees"`
	}
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if len(file.Trees) == 0 {
		return errors.New("scoring: empty forest")
	}
	fo.trees = fo.trees[:0]
	for _, nodes := range file.Trees {
		fo.trees = append(fo.trees, NewDecisionTree(nodes))
	}
	return nil
}

// Baseline is the built-in tree used when no model file is configured.
// Labels: 0 censored, 1 censored due to transplant, 2 deceased.
func Baseline() *DecisionTree {
	return NewDecisionTree([]TreeNode{
		{FeatureIdx: 8, Threshold: 2.0, LeftChild: 1, RightChild: 2},   // bilirubin
		{FeatureIdx: 17, Threshold: 3, LeftChild: 3, RightChild: 4},    // stage
		{FeatureIdx: 16, Threshold: 11.0, LeftChild: 5, RightChild: 6}, // prothrombin
		{IsLeaf: true, ClassLabel: 0},
		{FeatureIdx: 10, Threshold: 3.0, LeftChild: 7, RightChild: 8}, // albumin
		{IsLeaf: true, ClassLabel: 1},
		{IsLeaf: true, ClassLabel: 2},
		{IsLeaf: true, ClassLabel: 2},
		{IsLeaf: true, ClassLabel: 0},
	})
}
