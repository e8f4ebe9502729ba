package events

import "testing"

func TestRegistryNotifiesAllListeners(t *testing.T) {
	var r Registry[int]
	var got []int

	r.Add(func(v int) { got = append(got, v) })
	r.Add(func(v int) { got = append(got, v*10) })

	r.Notify(3)

	if len(got) != 2 || got[0] != 3 || got[1] != 30 {
		t.Fatalf("unexpected notify results: %v", got)
	}
}

func TestRegistryRemoveStopsFutureNotifications(t *testing.T) {
	var r Registry[int]
	var calls int

	remove := r.Add(func(int) { calls++ })
	r.Notify(1)
	remove()
	r.Notify(2)

	if calls != 1 {
		t.Fatalf("expected 1 call before removal, got %d", calls)
	}
}

func TestRegistryNotifyToleratesListenerCallingAdd(t *testing.T) {
	var r Registry[int]
	var secondCalls int

	r.Add(func(int) {
		r.Add(func(int) { secondCalls++ })
	})

	// First Notify: only the original listener runs; it registers a
	// second one under lock, but Notify already snapshotted before this
	// listener ran, so the new listener doesn't fire until the next call.
	r.Notify(1)
	if secondCalls != 0 {
		t.Fatalf("listener added during Notify should not fire in the same pass, got %d calls", secondCalls)
	}

	r.Notify(2)
	if secondCalls != 1 {
		t.Fatalf("expected listener added in prior pass to fire once, got %d", secondCalls)
	}
}

func TestNewRegistriesBundlesAllThree(t *testing.T) {
	regs := NewRegistries()
	if regs.VolumeChanged == nil || regs.MuteChanged == nil || regs.DeviceChanged == nil {
		t.Fatal("NewRegistries left a nil registry")
	}

	var gotVolume VolumeChanged
	regs.VolumeChanged.Add(func(v VolumeChanged) { gotVolume = v })
	regs.VolumeChanged.Notify(VolumeChanged{Factor: 0.5, Muted: true})
	if gotVolume.Factor != 0.5 || !gotVolume.Muted {
		t.Fatalf("unexpected volume event: %+v", gotVolume)
	}

	var gotDevice DeviceChanged
	regs.DeviceChanged.Add(func(v DeviceChanged) { gotDevice = v })
	regs.DeviceChanged.Notify(DeviceChanged{DeviceName: "speakers"})
	if gotDevice.DeviceName != "speakers" {
		t.Fatalf("unexpected device event: %+v", gotDevice)
	}
}
