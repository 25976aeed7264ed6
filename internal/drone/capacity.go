package drone

import "sort"

// Eligible reports whether d may be handed work. Drones without any
// process slots are never eligible, whatever their used capacity.
func Eligible(d Drone) bool {
	return d.Enabled() && d.MaxProcesses() > 0
}

// SelectLeastLoaded returns the eligible drone with the lowest used
// capacity. Ties go to the lexically smallest hostname.
func SelectLeastLoaded(drones []Drone) (Drone, error) {
	eligible := make([]Drone, 0, len(drones))
	for _, d := range drones {
		if Eligible(d) {
			eligible = append(eligible, d)
		}
	}

	if len(eligible) == 0 {
		return nil, ErrNoEligibleDrone
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ci, cj := eligible[i].UsedCapacity(), eligible[j].UsedCapacity()
		if ci != cj {
			return ci < cj
		}
		return eligible[i].Hostname() < eligible[j].Hostname()
	})

	return eligible[0], nil
}
