package reconcile

// Пороги вех по числу завершённых задач.
var milestoneThresholds = []int64{1, 5, 10, 25, 50, 100, 250, 500}

// CrossedMilestone — true, если текущее количество задач ровно на пороге.
func CrossedMilestone(tasksDone int64) (int64, bool) {
	for _, m := range milestoneThresholds {
		if tasksDone == m {
			return m, true
		}
	}
	return 0, false
}

// NextMilestone — ближайший ещё не взятый порог; 0, если всё взято.
func NextMilestone(tasksDone int64) int64 {
	for _, m := range milestoneThresholds {
		if tasksDone < m {
			return m
		}
	}
	return 0
}
