package drone

import "github.com/labfleet/fleetwatch/internal/drone/calls"

// located is implemented by every drone of this package.
type located interface {
	isLocal() bool
}

func (d *base) isLocal() bool {
	return d.local
}

// SendFileTo picks the transfer strategy from the topology of the two
// hosts:
//
//   - same host: a local copy queued on this drone
//   - remote source, local destination: the local drone fetches
//   - otherwise: this drone pushes to the destination host
func (d *base) SendFileTo(dst Drone, src, dstPath string, canFail bool) {
	if dst.Hostname() == d.hostname {
		d.QueueCall(calls.CopyFileOrDirectory{Source: src, Destination: dstPath})
		return
	}

	if l, ok := dst.(located); ok && l.isLocal() && !d.local {
		dst.QueueCall(calls.GetFileFrom{Hostname: d.hostname, Source: src, Destination: dstPath})
		return
	}

	d.QueueCall(calls.SendFileTo{
		Hostname:    dst.Hostname(),
		Source:      src,
		Destination: dstPath,
		CanFail:     canFail,
	})
}
