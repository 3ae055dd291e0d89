package cache

import "fmt"

// AnalysisKey addresses the evaluation of one resume content against one vacancy content.
func AnalysisKey(vacancyHash, resumeHash string) string {
	return fmt.Sprintf("analysis:%s:%s", vacancyHash, resumeHash)
}
