package harvest

import (
	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
)

// runStats accumulates per-model results into RunMetadata
type runStats struct {
	meta *models.RunMetadata
}

func newRunStats(meta *models.RunMetadata) *runStats {
	meta.Categories = make(map[models.ImageCategory]models.CategoryStats, len(models.CategoryPriority))
	for _, c := range models.CategoryPriority {
		meta.Categories[c] = models.CategoryStats{}
	}
	meta.Rejections = make(map[models.Outcome]int)
	meta.ErrorsByType = make(map[string]int)
	return &runStats{meta: meta}
}

// addModel folds one car record and its rejection counts into the totals
func (s *runStats) addModel(rec models.CarRecord, rejections map[models.Outcome]int) {
	s.meta.TotalModels++
	if rec.ErrorType != "" {
		s.meta.FailedModels++
		s.meta.ErrorsByType[rec.ErrorType]++
	}
	for cat, n := range rec.ImageCounts {
		st := s.meta.Categories[cat]
		st.Total += n
		if n > 0 {
			st.ModelsWith++
		}
		if n > st.MaxPerModel {
			st.MaxPerModel = n
		}
		s.meta.Categories[cat] = st
	}
	s.meta.TotalImages += rec.TotalImages
	for o, n := range rejections {
		s.meta.Rejections[o] += n
		s.meta.TotalRejected += n
	}
}

// addError counts a failure that did not produce a car record, such as a brand listing
func (s *runStats) addError(err error) {
	s.meta.ErrorsByType[utils.CategorizeError(err)]++
}

// finish computes the per-car means
func (s *runStats) finish() {
	if s.meta.TotalModels == 0 {
		return
	}
	for cat, st := range s.meta.Categories {
		st.MeanPerCar = float64(st.Total) / float64(s.meta.TotalModels)
		s.meta.Categories[cat] = st
	}
}
