// Package data holds dataset load metadata with atomic access for handlers,
// health checks and the scheduler.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/logging"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// DataContainer tracks what the search host was last initialized with
type DataContainer struct {
	lastLoad        atomic.Value // interfaces.LoadInfo
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	updateStartedAt atomic.Value // time.Time
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates an empty container
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.lastLoad.Store(interfaces.LoadInfo{})
	dc.lastUpdated.Store(time.Time{})
	dc.updateStartedAt.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// GetRecordCount returns how many unique records the host indexed on the last load
func (dc *DataContainer) GetRecordCount() int {
	return dc.GetLastLoad().Records
}

// GetLastLoad returns the metadata of the last successful load
func (dc *DataContainer) GetLastLoad() interfaces.LoadInfo {
	if v := dc.lastLoad.Load(); v != nil {
		if info, ok := v.(interfaces.LoadInfo); ok {
			return info
		}
	}

	logging.Warn("Could not get the last load info")
	return interfaces.LoadInfo{}
}

// GetLastUpdated returns the time of the last successful load
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true while a reload is in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// GetUpdateStartedAt returns when the running reload began, zero when idle
func (dc *DataContainer) GetUpdateStartedAt() time.Time {
	if !dc.IsUpdating() {
		return time.Time{}
	}
	if v := dc.updateStartedAt.Load(); v != nil {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// RecordLoad stores the metadata of a successful load and stamps it
func (dc *DataContainer) RecordLoad(info interfaces.LoadInfo) {
	dc.lastLoad.Store(info)
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a reload.
// Returns false if another reload is already running.
func (dc *DataContainer) BeginUpdate() bool {
	if !dc.updating.CompareAndSwap(false, true) {
		return false
	}
	dc.updateStartedAt.Store(time.Now())
	return true
}

// EndUpdate marks the end of a reload
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
