// Package snapshot records point-in-time copies of workflow state and turns a terminal
// state into a report.
//
// Snapshots are append-only: saving the state of a workflow run never replaces an
// earlier snapshot of the same run, so the full timeline of a run can be rebuilt
// afterwards. A Manager works on top of a Store; MemoryStore keeps snapshots for the
// life of the process while DiskStore writes each one to its own JSON file.
//
//	mgr := snapshot.NewManager(snapshot.NewMemoryStore(0))
//	if _, err := mgr.SaveState(wf.ID().String(), wf.Name(), state); err != nil {
//		return err
//	}
//	report := snapshot.GenerateReport(state)
//	report.Encode(os.Stdout, snapshot.FormatYAML)
package snapshot
