// Package devicestate holds the process-wide device state record.
//
// A Store is created once in main and handed to the broadcast core and the HTTP surface.
// Every mutation touches exactly one field (last writer wins); Get returns a copy so readers never see torn state.
package devicestate
