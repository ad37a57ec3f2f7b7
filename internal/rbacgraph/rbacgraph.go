// Package rbacgraph reconstructs the access graph implied by flat RBAC resource lists:
// roles and cluster roles, the bindings granting them, the subjects named by those
// bindings and the workloads running as service accounts.
//
// The pipeline is index -> filter -> build. Every stage is a pure function of its
// input; nothing is cached or mutated between calls.
package rbacgraph

import "github.com/PrasadTelasula/kaptivan-sub000/internal/models"

// BuildFromSnapshot runs the full index, filter and build pipeline.
func BuildFromSnapshot(snap *models.Snapshot, state FilterState) *BuildResult {
	return Build(Filter(NewIndex(snap), state))
}
