package search

import "testing"

func TestServerConfig_ShouldRunBackground_IdleGate(t *testing.T) {
	cfg := DefaultServerConfig()
	st := NewServerState(nil)

	if !cfg.ShouldRunBackground(st) {
		t.Fatal("expected background eligible with no active searches and none running")
	}

	st.SearchOpened()
	if cfg.ShouldRunBackground(st) {
		t.Fatal("expected background gated off while a search is active and IdleBackground is set")
	}
}

func TestServerConfig_ShouldRunBackground_NotIdleIgnoresActiveSearches(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.IdleBackground = false
	st := NewServerState(nil)
	st.SearchOpened()

	if !cfg.ShouldRunBackground(st) {
		t.Fatal("expected background eligible regardless of active searches when IdleBackground is false")
	}
}

func TestServerConfig_ShouldRunBackground_DisabledNeverRuns(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.DoBackground = false
	st := NewServerState(nil)

	if cfg.ShouldRunBackground(st) {
		t.Fatal("expected background never eligible when DoBackground is false")
	}
}

func TestServerState_BackgroundPIDGatesReRun(t *testing.T) {
	cfg := DefaultServerConfig()
	st := NewServerState(nil)
	st.SetBackgroundPID(1234)

	if cfg.ShouldRunBackground(st) {
		t.Fatal("expected background not eligible while one is already tracked as running")
	}
}

func TestServerState_ActiveSearchesCounting(t *testing.T) {
	st := NewServerState(nil)
	st.SearchOpened()
	st.SearchOpened()
	st.SearchClosed()
	if got := st.ActiveSearches(); got != 1 {
		t.Fatalf("ActiveSearches() = %d, want 1", got)
	}
}
