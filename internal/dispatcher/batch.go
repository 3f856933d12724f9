package dispatcher

import "github.com/bakkerme/posterdigest/internal/core"

// Batch is one delivery unit. Index is 1-based.
type Batch struct {
	Index     int
	Total     int
	Artifacts []core.Artifact
}

func (b Batch) IDs() []string {
	ids := make([]string, 0, len(b.Artifacts))
	for _, artifact := range b.Artifacts {
		ids = append(ids, artifact.ItemID)
	}
	return ids
}

// Size is the estimated aggregate size of the batch.
func (b Batch) Size() int64 {
	var total int64
	for _, artifact := range b.Artifacts {
		total += artifact.EstimatedSize
	}
	return total
}

// Plan groups artifacts greedily in a single pass. An artifact joins the
// current batch while the sum stays within budget; otherwise it starts a new
// batch. An artifact larger than the budget on its own becomes a singleton.
func Plan(artifacts []core.Artifact, budget int64) []Batch {
	var (
		batches []Batch
		current []core.Artifact
		size    int64
	)
	for _, artifact := range artifacts {
		if size+artifact.EstimatedSize <= budget {
			current = append(current, artifact)
			size += artifact.EstimatedSize
			continue
		}
		if len(current) > 0 {
			batches = append(batches, Batch{Artifacts: current})
			current = []core.Artifact{artifact}
			size = artifact.EstimatedSize
			continue
		}
		batches = append(batches, Batch{Artifacts: []core.Artifact{artifact}})
	}
	if len(current) > 0 {
		batches = append(batches, Batch{Artifacts: current})
	}
	for i := range batches {
		batches[i].Index = i + 1
		batches[i].Total = len(batches)
	}
	return batches
}
