package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/matchpoint-io/matchpoint/internal/names"
)

// DuplicateOptions tunes one duplicate pass.
type DuplicateOptions struct {
	// Apply performs the merges. Off by default: the detection report is
	// meant to be read before anything is destroyed.
	Apply bool

	// MaxMerges caps how many merges a single pass performs. 0 = no cap.
	MaxMerges int
}

// DuplicatePair is one high-similarity alias pair between two players.
type DuplicatePair struct {
	PlayerA int64   `json:"playerA"`
	PlayerB int64   `json:"playerB"`
	AliasA  string  `json:"aliasA"`
	AliasB  string  `json:"aliasB"`
	Score   float64 `json:"score"`
}

// DuplicateGroup is one transitively-closed cluster of duplicate players.
// KeepID is the merge target; MergeIDs are the rows folded into it.
type DuplicateGroup struct {
	KeepID   int64   `json:"keepId"`
	KeepName string  `json:"keepName"`
	MergeIDs []int64 `json:"mergeIds"`
}

// DuplicateReport summarizes a duplicate pass.
type DuplicateReport struct {
	PlayersScanned int              `json:"playersScanned"`
	Pairs          []DuplicatePair  `json:"pairs,omitempty"`
	Groups         []DuplicateGroup `json:"groups,omitempty"`
	Merged         int              `json:"merged"`
	Errors         []string         `json:"errors,omitempty"`
	Applied        bool             `json:"applied"`
}

// Duplicates detects duplicate players and, when opts.Apply is set, merges
// each group into its keep side.
//
// Detection groups players by the extracted last name of every alias they
// carry, scores each in-group pair as the maximum similarity over the two
// players' alias variants, and keeps pairs at or above the threshold. Pairs
// whose majority match genders disagree are never reported: a men's and a
// women's player sharing a name are different people. Kept pairs are closed
// transitively so a chain A~B~C collapses into one group, and the group's
// keep side is the member with the most matches, then the most external IDs,
// then the oldest row.
func (s *Service) Duplicates(ctx context.Context, opts DuplicateOptions) (*DuplicateReport, error) {
	snapshots, err := s.store.PlayerSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load player snapshots: %w", err)
	}

	report := &DuplicateReport{
		PlayersScanned: len(snapshots),
		Applied:        opts.Apply,
	}

	byID := make(map[int64]PlayerSnapshot, len(snapshots))
	for _, snapshot := range snapshots {
		byID[snapshot.ID] = snapshot
	}

	parent := make(map[int64]int64, len(snapshots))
	seen := make(map[[2]int64]bool)

	for _, group := range groupByLastName(snapshots) {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := byID[group[i]], byID[group[j]]

				key := [2]int64{a.ID, b.ID}
				if seen[key] {
					continue
				}

				seen[key] = true

				if crossGender(a, b) {
					continue
				}

				aliasA, aliasB, score := s.bestAliasScore(a, b)
				if score < s.threshold {
					continue
				}

				report.Pairs = append(report.Pairs, DuplicatePair{
					PlayerA: a.ID,
					PlayerB: b.ID,
					AliasA:  aliasA,
					AliasB:  aliasB,
					Score:   score,
				})

				union(parent, a.ID, b.ID)
			}
		}
	}

	report.Groups = buildGroups(parent, byID)

	if !opts.Apply {
		return report, nil
	}

	for _, group := range report.Groups {
		for _, mergeID := range group.MergeIDs {
			if opts.MaxMerges > 0 && report.Merged >= opts.MaxMerges {
				return report, nil
			}

			if _, err := s.identity.MergePlayers(ctx, group.KeepID, mergeID); err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("merge %d into %d: %v", mergeID, group.KeepID, err))

				continue
			}

			report.Merged++
		}

		s.logger.Info("duplicate group merged",
			slog.Int64("keep_id", group.KeepID),
			slog.String("keep_name", group.KeepName),
			slog.Int("merged", len(group.MergeIDs)),
		)
	}

	return report, nil
}

// bestAliasScore scores two players as the maximum similarity over every
// alias pairing, canonical names included.
func (s *Service) bestAliasScore(a, b PlayerSnapshot) (string, string, float64) {
	var (
		bestA, bestB string
		best         float64
	)

	for _, aliasA := range aliasVariants(a) {
		for _, aliasB := range aliasVariants(b) {
			if score := s.compare.Similarity(aliasA, aliasB); score > best {
				bestA, bestB, best = aliasA, aliasB, score
			}
		}
	}

	return bestA, bestB, best
}

func aliasVariants(p PlayerSnapshot) []string {
	variants := make([]string, 0, len(p.Aliases)+1)
	variants = append(variants, p.CanonicalName)
	variants = append(variants, p.Aliases...)

	return variants
}

// crossGender reports whether both players have matches and their majority
// genders disagree.
func crossGender(a, b PlayerSnapshot) bool {
	ga, gb := a.MajorityGender(), b.MajorityGender()

	return ga != "" && gb != "" && ga != gb
}

// groupByLastName buckets player IDs by the extracted last name of every
// name variant they carry. A player with aliases in two last-name shapes
// lands in both buckets.
func groupByLastName(snapshots []PlayerSnapshot) map[string][]int64 {
	members := make(map[string]map[int64]bool)

	for _, snapshot := range snapshots {
		for _, variant := range aliasVariants(snapshot) {
			lastName := names.LastName(names.Normalize(variant))
			if lastName == "" {
				continue
			}

			if members[lastName] == nil {
				members[lastName] = make(map[int64]bool)
			}

			members[lastName][snapshot.ID] = true
		}
	}

	groups := make(map[string][]int64, len(members))

	for lastName, ids := range members {
		if len(ids) < 2 {
			continue
		}

		group := make([]int64, 0, len(ids))
		for id := range ids {
			group = append(group, id)
		}

		sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
		groups[lastName] = group
	}

	return groups
}

func find(parent map[int64]int64, id int64) int64 {
	root, ok := parent[id]
	if !ok || root == id {
		return id
	}

	root = find(parent, root)
	parent[id] = root

	return root
}

func union(parent map[int64]int64, a, b int64) {
	rootA, rootB := find(parent, a), find(parent, b)
	if rootA != rootB {
		parent[rootB] = rootA
	}

	parent[a], parent[b] = rootA, rootA
}

// buildGroups turns the union-find forest into merge groups, ordering each
// group's members by keep priority: match count, external-ID count, oldest ID.
func buildGroups(parent map[int64]int64, byID map[int64]PlayerSnapshot) []DuplicateGroup {
	clusters := make(map[int64][]int64)

	for id := range parent {
		root := find(parent, id)
		clusters[root] = append(clusters[root], id)
	}

	var groups []DuplicateGroup

	for _, members := range clusters {
		if len(members) < 2 {
			continue
		}

		sort.Slice(members, func(i, j int) bool {
			a, b := byID[members[i]], byID[members[j]]

			if a.MatchCount != b.MatchCount {
				return a.MatchCount > b.MatchCount
			}

			if a.ExternalIDCount != b.ExternalIDCount {
				return a.ExternalIDCount > b.ExternalIDCount
			}

			return a.ID < b.ID
		})

		keep := byID[members[0]]
		groups = append(groups, DuplicateGroup{
			KeepID:   keep.ID,
			KeepName: keep.CanonicalName,
			MergeIDs: members[1:],
		})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].KeepID < groups[j].KeepID })

	return groups
}
