package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openpacs/pacsd/pkg/object"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "pacs.db"), 10)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testObject() *object.Object {
	n := 3
	return &object.Object{
		PatientID:         "P1",
		PatientName:       "DOE^JOHN",
		PatientBirthDate:  "19700101",
		PatientSex:        "M",
		StudyInstanceUID:  "1.2.3.1",
		StudyDate:         "20260815",
		StudyDescription:  "CHEST CT",
		Modality:          "CT",
		SeriesInstanceUID: "1.2.3.1.1",
		SeriesNumber:      &n,
		SOPInstanceUID:    "1.2.3.1.1.1",
		SOPClassUID:       "1.2.840.10008.5.1.4.1.1.2",
		TransferSyntaxUID: "1.2.840.10008.1.2",
	}
}

func mustCount(t *testing.T, repo *Repository, table string, want int) {
	t.Helper()
	got, err := repo.CountRows(context.Background(), table)
	if err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	if got != want {
		t.Errorf("%s rows = %d, want %d", table, got, want)
	}
}

func TestStoreObject_CreatesHierarchy(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.StoreObject(context.Background(), testObject(), "/storage/f.dcm", 1234); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	mustCount(t, repo, "patients", 1)
	mustCount(t, repo, "studies", 1)
	mustCount(t, repo, "series", 1)
	mustCount(t, repo, "instances", 1)

	// Parent linkage is resolvable end to end.
	var patientID string
	err := repo.db.QueryRow(`
		SELECT p.patient_id
		FROM instances i
		JOIN series se ON i.series_id = se.id
		JOIN studies s ON se.study_id = s.id
		JOIN patients p ON s.patient_id = p.id
		WHERE i.sop_instance_uid = ?`, "1.2.3.1.1.1").Scan(&patientID)
	if err != nil {
		t.Fatalf("linkage query failed: %v", err)
	}
	if patientID != "P1" {
		t.Errorf("linked patient = %q, want P1", patientID)
	}
}

func TestStoreObject_Idempotent(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 2; i++ {
		if err := repo.StoreObject(context.Background(), testObject(), "/storage/f.dcm", 1234); err != nil {
			t.Fatalf("store %d failed: %v", i, err)
		}
	}

	mustCount(t, repo, "patients", 1)
	mustCount(t, repo, "studies", 1)
	mustCount(t, repo, "series", 1)
	mustCount(t, repo, "instances", 1)
}

func TestStoreObject_DuplicateInstanceKeepsFirstValues(t *testing.T) {
	repo := newTestRepo(t)

	first := testObject()
	if err := repo.StoreObject(context.Background(), first, "/storage/first.dcm", 100); err != nil {
		t.Fatalf("first store failed: %v", err)
	}

	second := testObject()
	second.SOPClassUID = "1.2.840.10008.5.1.4.1.1.4"
	if err := repo.StoreObject(context.Background(), second, "/storage/second.dcm", 200); err != nil {
		t.Fatalf("second store failed: %v", err)
	}

	mustCount(t, repo, "instances", 1)

	var filePath, sopClass string
	var fileSize int64
	err := repo.db.QueryRow(`
		SELECT file_path, file_size, sop_class_uid FROM instances WHERE sop_instance_uid = ?`,
		"1.2.3.1.1.1").Scan(&filePath, &fileSize, &sopClass)
	if err != nil {
		t.Fatalf("instance query failed: %v", err)
	}
	if filePath != "/storage/first.dcm" || fileSize != 100 || sopClass != "1.2.840.10008.5.1.4.1.1.2" {
		t.Errorf("first-inserted values not retained: path=%q size=%d class=%q",
			filePath, fileSize, sopClass)
	}
}

func TestStoreObject_MissingDescriptiveFields(t *testing.T) {
	repo := newTestRepo(t)

	obj := &object.Object{
		PatientID:         "UNKNOWN",
		PatientName:       "UNKNOWN",
		StudyInstanceUID:  "2.25.100",
		SeriesInstanceUID: "2.25.101",
		SOPInstanceUID:    "2.25.102",
	}
	if err := repo.StoreObject(context.Background(), obj, "/storage/g.dcm", 1); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	mustCount(t, repo, "patients", 1)
	mustCount(t, repo, "studies", 1)
	mustCount(t, repo, "series", 1)
	mustCount(t, repo, "instances", 1)
}

func TestStoreObject_ConcurrentSharedStudy(t *testing.T) {
	repo := newTestRepo(t)

	// Two sessions deliver instances for the same study but different
	// series; the hierarchy must converge on one Study and two Series.
	a := testObject()
	b := testObject()
	b.SeriesInstanceUID = "1.2.3.1.2"
	b.SOPInstanceUID = "1.2.3.1.2.1"

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, obj := range []*object.Object{a, b} {
		wg.Add(1)
		go func(i int, obj *object.Object) {
			defer wg.Done()
			errs[i] = repo.StoreObject(context.Background(), obj, "/storage/c.dcm", 1)
		}(i, obj)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("store %d failed: %v", i, err)
		}
	}

	mustCount(t, repo, "patients", 1)
	mustCount(t, repo, "studies", 1)
	mustCount(t, repo, "series", 2)
	mustCount(t, repo, "instances", 2)

	var studyIDs int
	err := repo.db.QueryRow(`SELECT COUNT(DISTINCT study_id) FROM series`).Scan(&studyIDs)
	if err != nil {
		t.Fatalf("distinct study query failed: %v", err)
	}
	if studyIDs != 1 {
		t.Errorf("series link to %d studies, want 1", studyIDs)
	}
}

func TestListStudies(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.StoreObject(context.Background(), testObject(), "/storage/f.dcm", 1); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	second := testObject()
	second.SOPInstanceUID = "1.2.3.1.1.2"
	if err := repo.StoreObject(context.Background(), second, "/storage/f2.dcm", 1); err != nil {
		t.Fatalf("second store failed: %v", err)
	}

	studies, err := repo.ListStudies(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(studies) != 1 {
		t.Fatalf("expected 1 study, got %d", len(studies))
	}

	s := studies[0]
	if s.StudyInstanceUID != "1.2.3.1" || s.PatientID != "P1" {
		t.Errorf("unexpected study row: %+v", s)
	}
	if s.SeriesCount != 1 || s.InstanceCount != 2 {
		t.Errorf("counts = %d series / %d instances, want 1 / 2", s.SeriesCount, s.InstanceCount)
	}
}
