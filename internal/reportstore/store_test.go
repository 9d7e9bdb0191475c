package reportstore

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidfague/bmtool/internal/connectivity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db", "reports.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testGrid(t *testing.T) connectivity.Grid {
	t.Helper()
	m, err := connectivity.NewMatrixFrom([][]float64{{1, math.NaN()}, {0, 2.5}})
	if err != nil {
		t.Fatalf("NewMatrixFrom() error = %v", err)
	}
	return connectivity.Grid{
		Values:      m,
		Annotations: [][]string{{"1", ""}, {"0", "2.5"}},
		RowLabels:   []string{"PN", "PV"},
		ColLabels:   []string{"PN", "PV"},
	}
}

func TestReportRoundTrip(t *testing.T) {
	s := newTestStore(t)

	r := &Report{Kind: "total", Title: "Total Connections", Params: map[string]string{"sources": "cortex"}, Grid: testGrid(t)}
	if err := s.SaveReport(r); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected report ID to be assigned")
	}

	got, err := s.GetReport(r.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got == nil {
		t.Fatal("report not found")
	}
	if got.Title != r.Title || got.Params["sources"] != "cortex" {
		t.Fatalf("unexpected report %+v", got)
	}
	if got.Grid.Values.At(1, 1) != 2.5 || !math.IsNaN(got.Grid.Values.At(0, 1)) {
		t.Fatalf("unexpected values %v", got.Grid.Values)
	}
	if got.Grid.Annotations[1][1] != "2.5" || got.Grid.RowLabels[1] != "PV" {
		t.Fatalf("unexpected grid %+v", got.Grid)
	}

	list, err := s.ListReports(10)
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != r.ID {
		t.Fatalf("ListReports() = %v", list)
	}

	if err := s.DeleteReport(r.ID); err != nil {
		t.Fatalf("DeleteReport() error = %v", err)
	}
	if got, _ := s.GetReport(r.ID); got != nil {
		t.Fatal("expected report to be deleted")
	}
}

func TestReportWithoutAnnotations(t *testing.T) {
	s := newTestStore(t)
	g := testGrid(t)
	g.Annotations = nil

	r := &Report{Kind: "probability", Grid: g}
	if err := s.SaveReport(r); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}
	got, err := s.GetReport(r.ID)
	if err != nil || got == nil {
		t.Fatalf("GetReport() = %v, %v", got, err)
	}
	if got.Grid.Annotations != nil {
		t.Fatalf("expected nil annotations, got %v", got.Grid.Annotations)
	}
}

func TestSaveReportRejectsBadGrid(t *testing.T) {
	s := newTestStore(t)
	g := testGrid(t)
	g.ColLabels = []string{"PN"}
	if err := s.SaveReport(&Report{Kind: "total", Grid: g}); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)

	job := &RenderJob{Kind: "percent", Status: JobStatusQueued, Params: map[string]string{"method": "uni"}, CreatedAt: time.Now()}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	queued, err := s.ListQueuedJobs()
	if err != nil || len(queued) != 1 {
		t.Fatalf("ListQueuedJobs() = %v, %v", queued, err)
	}

	if err := s.UpdateJobStarted(job.ID); err != nil {
		t.Fatalf("UpdateJobStarted() error = %v", err)
	}
	if err := s.UpdateJobPhase(job.ID, "reduce"); err != nil {
		t.Fatalf("UpdateJobPhase() error = %v", err)
	}
	if err := s.SetJobReport(job.ID, "r-1"); err != nil {
		t.Fatalf("SetJobReport() error = %v", err)
	}
	if err := s.UpdateJobStatus(job.ID, JobStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}

	got, err := s.GetJob(job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetJob() = %v, %v", got, err)
	}
	if got.Status != JobStatusCompleted || got.Phase != "reduce" || got.ReportID != "r-1" {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("expected start and finish times")
	}
	if got.Params["method"] != "uni" {
		t.Fatalf("unexpected params %v", got.Params)
	}

	if err := s.DeleteJob(job.ID); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if got, _ := s.GetJob(job.ID); got != nil {
		t.Fatal("expected job to be deleted")
	}
}

func TestMarkRunningAsFailed(t *testing.T) {
	s := newTestStore(t)

	job := &RenderJob{Kind: "total", Status: JobStatusQueued, CreatedAt: time.Now()}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := s.UpdateJobStarted(job.ID); err != nil {
		t.Fatalf("UpdateJobStarted() error = %v", err)
	}
	if err := s.MarkRunningAsFailed("server restarted"); err != nil {
		t.Fatalf("MarkRunningAsFailed() error = %v", err)
	}
	got, _ := s.GetJob(job.ID)
	if got.Status != JobStatusFailed || got.Error != "server restarted" {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestDeleteExpired(t *testing.T) {
	s := newTestStore(t)

	old := &Report{Kind: "total", Grid: testGrid(t), CreatedAt: time.Now().AddDate(0, 0, -40)}
	fresh := &Report{Kind: "total", Grid: testGrid(t)}
	for _, r := range []*Report{old, fresh} {
		if err := s.SaveReport(r); err != nil {
			t.Fatalf("SaveReport() error = %v", err)
		}
	}

	n, err := s.DeleteExpired(30)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deletion, got %d", n)
	}
	if got, _ := s.GetReport(fresh.ID); got == nil {
		t.Fatal("fresh report was deleted")
	}
}
