package changes

import "testing"

type fakeStatusReader struct {
	status string
	err    error
}

func (f fakeStatusReader) Status() (string, error) { return f.status, f.err }

func TestSnapshotEmptyStatus(t *testing.T) {
	s, err := Snapshot(fakeStatusReader{status: ""})
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsEmpty() {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}

func TestSnapshotClassifiesUntrackedAsAdded(t *testing.T) {
	s, err := Snapshot(fakeStatusReader{status: "?? newfile.go\n"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.FilesAdded["newfile.go"]; !ok {
		t.Fatalf("expected newfile.go added, got %+v", s)
	}
}

func TestSnapshotClassifiesModifiedAndDeleted(t *testing.T) {
	status := " M changed.go\nD  removed.go\n"
	s, err := Snapshot(fakeStatusReader{status: status})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.FilesModified["changed.go"]; !ok {
		t.Fatalf("expected changed.go modified, got %+v", s)
	}
	if _, ok := s.FilesDeleted["removed.go"]; !ok {
		t.Fatalf("expected removed.go deleted, got %+v", s)
	}
}

func TestSnapshotClassifiesRenameAsDeleteAndAdd(t *testing.T) {
	s, err := Snapshot(fakeStatusReader{status: "R  old.go -> new.go\n"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.FilesDeleted["old.go"]; !ok {
		t.Fatalf("expected old.go deleted, got %+v", s)
	}
	if _, ok := s.FilesAdded["new.go"]; !ok {
		t.Fatalf("expected new.go added, got %+v", s)
	}
}

func TestSnapshotResultIsDisjoint(t *testing.T) {
	status := "?? a.go\n M b.go\nD  c.go\nR  d.go -> e.go\n"
	s, err := Snapshot(fakeStatusReader{status: status})
	if err != nil {
		t.Fatal(err)
	}
	if !s.Disjoint() {
		t.Fatalf("expected disjoint sets, got %+v", s)
	}
}
