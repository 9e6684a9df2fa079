package compute

import (
	lg "github.com/Andrej220/go-utils/zlog"
)

// reportInternalError reports a device error that no operation caused,
// such as a worker thread that could not be pinned.
//
// It is always logged. If no handler is registered, that is all.
func (d *Device) reportInternalError(err error) {
	lg.FromContext(d.ctx).Warn("compute internal error", lg.Any("error", err))
	if d.opts.OnInternalError != nil {
		d.opts.OnInternalError(err)
	}
}

// reportPayloadError reports the error that aborted a worker.
//
// Payload errors never stop the device; other workers keep executing the
// operation.
func (d *Device) reportPayloadError(err error) {
	if d.opts.OnPayloadError != nil {
		d.opts.OnPayloadError(err)
	}
}
