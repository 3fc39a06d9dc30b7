// Package testutil holds deterministic fixtures shared by package tests.
package testutil

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/sealbench/internal/ir"
)

// Master is a fixed master secret. Never use it outside tests.
var Master = []byte("sealbench-test-master-secret-000")

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ChainDataset is the three-record chain A -> B -> C (A depends on B, B on C).
func ChainDataset() ir.Dataset {
	return ir.Dataset{
		Version: "chain-v1",
		Track:   "main",
		Records: []ir.PaperRecord{
			{
				CanonicalKey: "paper-a",
				Title:        "Sparse routing for mixture layers",
				Description:  "Routes each token to two experts chosen by a learned gate and builds on paper-b.",
				Tags:         []string{"moe", "routing"},
				Dependencies: []string{"paper-b"},
				Results:      map[string]float64{"accuracy": 81.5},
			},
			{
				CanonicalKey: "paper-b",
				Title:        "Gated expert layers",
				Description:  "Introduces a trainable gating network that mixes the outputs of many feed forward experts.",
				Tags:         []string{"moe"},
				Dependencies: []string{"paper-c"},
				Results:      map[string]float64{"accuracy": 78.2},
			},
			{
				CanonicalKey: "paper-c",
				Title:        "Adaptive mixtures of local experts",
				Description:  "Trains competing expert networks with a supervisor that assigns each case to one expert.",
				Tags:         []string{"ensembles", "moe"},
				Results:      map[string]float64{"accuracy": 70.0},
			},
		},
	}
}

// NumericDataset is a ten-record chain whose "score" field spans 1..100.
func NumericDataset() ir.Dataset {
	values := []float64{1, 12, 23, 34, 45, 56, 67, 78, 89, 100}
	ds := ir.Dataset{Version: "numeric-v1", Track: "main"}
	for i, v := range values {
		r := ir.PaperRecord{
			CanonicalKey: fmt.Sprintf("node-%02d", i),
			Description:  fmt.Sprintf("benchmark entry number %d with a measured score", i),
			Tags:         []string{"bench"},
			Results:      map[string]float64{"score": v},
		}
		if i > 0 {
			r.Dependencies = []string{fmt.Sprintf("node-%02d", i-1)}
		}
		ds.Records = append(ds.Records, r)
	}
	return ds
}

// CorpusDataset is a small research history with distinctive descriptions,
// used as both the sealing input and the adversary's reference corpus.
func CorpusDataset() ir.Dataset {
	return ir.Dataset{
		Version: "corpus-v1",
		Track:   "nlp",
		Records: []ir.PaperRecord{
			{
				CanonicalKey: "arxiv:1409.0473",
				Title:        "Neural machine translation by jointly learning to align and translate",
				Description:  "Soft alignment attention lets an encoder decoder translator search the source sentence while generating each target word.",
				Tags:         []string{"attention", "translation"},
				Results:      map[string]float64{"bleu": 26.75},
			},
			{
				CanonicalKey: "arxiv:1706.03762",
				Title:        "Attention is all you need",
				Description:  "Transformer architecture replaces recurrence entirely with multi head self attention and positional encodings.",
				Tags:         []string{"attention", "transformer"},
				Dependencies: []string{"arxiv:1409.0473"},
				Results:      map[string]float64{"bleu": 28.4},
			},
			{
				CanonicalKey: "arxiv:1810.04805",
				Title:        "Pre-training of deep bidirectional transformers",
				Description:  "Masked language modeling and next sentence prediction pretrain a bidirectional transformer encoder for fine tuning.",
				Tags:         []string{"pretraining", "transformer"},
				Dependencies: []string{"arxiv:1706.03762"},
				Results:      map[string]float64{"glue": 80.5},
			},
			{
				CanonicalKey: "arxiv:2005.14165",
				Title:        "Language models are few-shot learners",
				Description:  "A very large autoregressive decoder performs tasks from in context demonstrations without gradient updates.",
				Tags:         []string{"pretraining", "scaling"},
				Dependencies: []string{"arxiv:1706.03762"},
				Results:      map[string]float64{"glue": 71.8},
			},
			{
				CanonicalKey: "arxiv:1907.11692",
				Title:        "A robustly optimized pretraining approach",
				Description:  "Longer training with bigger batches dynamic masking and no next sentence objective improves the bidirectional encoder.",
				Tags:         []string{"pretraining", "transformer"},
				Dependencies: []string{"arxiv:1810.04805"},
				Results:      map[string]float64{"glue": 88.5},
			},
			{
				CanonicalKey: "arxiv:2001.08361",
				Title:        "Scaling laws for neural language models",
				Description:  "Cross entropy loss follows smooth power laws in parameter count dataset size and compute budget.",
				Tags:         []string{"scaling"},
				Dependencies: []string{"arxiv:1706.03762"},
			},
			{
				CanonicalKey: "arxiv:2203.15556",
				Title:        "Training compute-optimal large language models",
				Description:  "Compute optimal training scales parameters and tokens equally so a smaller model trained longer beats larger ones.",
				Tags:         []string{"scaling"},
				Dependencies: []string{"arxiv:2001.08361", "arxiv:2005.14165"},
			},
			{
				CanonicalKey: "arxiv:1512.03385",
				Title:        "Deep residual learning for image recognition",
				Description:  "Identity shortcut connections let very deep convolutional networks learn residual functions without degradation.",
				Tags:         []string{"vision"},
				Results:      map[string]float64{"top1": 78.6},
			},
			{
				CanonicalKey: "arxiv:2010.11929",
				Title:        "An image is worth 16x16 words",
				Description:  "Images split into fixed size patches are fed as token sequences to a plain transformer encoder for classification.",
				Tags:         []string{"transformer", "vision"},
				Dependencies: []string{"arxiv:1706.03762", "arxiv:1512.03385"},
				Results:      map[string]float64{"top1": 88.55},
			},
			{
				CanonicalKey: "arxiv:2106.09685",
				Title:        "Low-rank adaptation of large language models",
				Description:  "Frozen pretrained weights are adapted by injecting trainable rank decomposition matrices into each layer.",
				Tags:         []string{"finetuning"},
				Dependencies: []string{"arxiv:2005.14165"},
			},
			{
				CanonicalKey: "arxiv:2201.11903",
				Title:        "Chain of thought prompting elicits reasoning",
				Description:  "Prompting with worked intermediate reasoning steps sharply improves arithmetic and symbolic reasoning accuracy.",
				Tags:         []string{"prompting", "scaling"},
				Dependencies: []string{"arxiv:2005.14165"},
			},
			{
				CanonicalKey: "arxiv:2203.02155",
				Title:        "Training language models to follow instructions with human feedback",
				Description:  "Supervised demonstrations plus a reward model from human rankings tune a policy with proximal policy optimization.",
				Tags:         []string{"alignment", "finetuning"},
				Dependencies: []string{"arxiv:2005.14165"},
			},
		},
	}
}

// Config returns a level preset, panicking on an unknown level.
func Config(level int) ir.SealConfig {
	cfg, err := ir.LevelPreset(level)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Keys returns the canonical keys of ds in input order.
func Keys(ds ir.Dataset) []string {
	out := make([]string, len(ds.Records))
	for i, r := range ds.Records {
		out[i] = r.CanonicalKey
	}
	return out
}
