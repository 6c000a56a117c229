package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	if m.CampaignsCreatedTotal == nil {
		t.Error("CampaignsCreatedTotal is nil")
	}
	if m.WizardSubmissionsTotal == nil {
		t.Error("WizardSubmissionsTotal is nil")
	}
	if m.EmailsSentTotal == nil {
		t.Error("EmailsSentTotal is nil")
	}
	if m.SpoolPending == nil {
		t.Error("SpoolPending is nil")
	}
	if m.APIRequestsTotal == nil {
		t.Error("APIRequestsTotal is nil")
	}
	if m.APIRequestDurationSeconds == nil {
		t.Error("APIRequestDurationSeconds is nil")
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
}

func TestIncEmailsSent(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncEmailsSent()
	IncEmailsSent()

	if got := testutil.ToFloat64(m.EmailsSentTotal); got != 2 {
		t.Errorf("EmailsSentTotal = %f, want 2", got)
	}
}

func TestIncEmailsFailed(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncEmailsFailed("timeout")
	IncEmailsFailed("rejected")
	IncEmailsFailed("timeout")

	if got := testutil.ToFloat64(m.EmailsFailedTotal.WithLabelValues("timeout")); got != 2 {
		t.Errorf("EmailsFailedTotal{timeout} = %f, want 2", got)
	}
}

func TestIncWizardSubmissions(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncWizardSubmissions("success")
	IncWizardSubmissions("failure")
	IncWizardSubmissions("success")

	if got := testutil.ToFloat64(m.WizardSubmissionsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("WizardSubmissionsTotal{success} = %f, want 2", got)
	}
}

func TestSetSpoolSizes(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetSpoolSizes(5, 2, 1)

	if got := testutil.ToFloat64(m.SpoolPending); got != 5 {
		t.Errorf("SpoolPending = %f, want 5", got)
	}
	if got := testutil.ToFloat64(m.SpoolDeferred); got != 2 {
		t.Errorf("SpoolDeferred = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.SpoolDeadLetter); got != 1 {
		t.Errorf("SpoolDeadLetter = %f, want 1", got)
	}
}

func TestHelpersWithNilGlobal(t *testing.T) {
	SetGlobal(nil)

	// must not panic
	IncCampaignsCreated()
	IncCampaignsScheduled()
	IncCampaignsCancelled()
	IncCampaignsSent()
	IncWizardSessions()
	IncWizardSubmissions("success")
	IncEmailsSent()
	IncEmailsFailed("timeout")
	SetSpoolSizes(0, 0, 0)
}
