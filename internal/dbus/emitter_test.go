package dbus

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notibridge/notibridge/internal/wire"
)

func testPolicy() Policy {
	return Policy{
		SummaryPrefix: "[work] ",
		AppName:       "notibridge",
	}
}

func fullCaps() CapabilitySet {
	return NewCapabilitySet([]string{
		"actions", "body", "body-markup", "inline-reply", "persistence", "sound",
	})
}

func TestBuildNotifyArgsAppName(t *testing.T) {
	n := &wire.Notify{Seq: 1, AppName: "Thunderbird", Summary: "mail"}

	t.Run("forwarding disabled", func(t *testing.T) {
		appName, _, _, _, _, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.Equal(t, "notibridge", appName)
	})

	t.Run("forwarding enabled", func(t *testing.T) {
		policy := testPolicy()
		policy.ForwardAppName = true
		appName, _, _, _, _, err := buildNotifyArgs(n, fullCaps(), policy)
		require.NoError(t, err)
		assert.Equal(t, "Thunderbird", appName)
	})

	t.Run("forwarding enabled but guest sent none", func(t *testing.T) {
		policy := testPolicy()
		policy.ForwardAppName = true
		empty := &wire.Notify{Seq: 1, Summary: "mail"}
		appName, _, _, _, _, err := buildNotifyArgs(empty, fullCaps(), policy)
		require.NoError(t, err)
		assert.Equal(t, "notibridge", appName)
	})
}

func TestBuildNotifyArgsSummaryPrefix(t *testing.T) {
	// The prefix goes in after sanitization so guest control characters
	// cannot displace it.
	n := &wire.Notify{Seq: 1, Summary: "\x08[work] fake"}
	_, summary, _, _, _, err := buildNotifyArgs(n, fullCaps(), testPolicy())
	require.NoError(t, err)
	assert.Equal(t, "[work] �[work] fake", summary)
}

func TestBuildNotifyArgsBodyMarkup(t *testing.T) {
	n := &wire.Notify{Seq: 1, Summary: "s", Body: `<b>5 & 6</b>`}

	t.Run("daemon parses markup", func(t *testing.T) {
		_, _, body, _, _, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.Equal(t, "&lt;b&gt;5 &amp; 6&lt;/b&gt;", body)
	})

	t.Run("plain text daemon", func(t *testing.T) {
		caps := NewCapabilitySet([]string{"body"})
		_, _, body, _, _, err := buildNotifyArgs(n, caps, testPolicy())
		require.NoError(t, err)
		assert.Equal(t, "<b>5 & 6</b>", body)
	})
}

func TestBuildNotifyArgsActions(t *testing.T) {
	t.Run("valid pairs forwarded with sanitized labels", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", Actions: []string{"default", "Open\x07", "mail-reply", "Reply"}}
		_, _, _, actions, _, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.Equal(t, []string{"default", "Open�", "mail-reply", "Reply"}, actions)
	})

	t.Run("dropped without actions capability", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", Actions: []string{"default", "Open"}}
		caps := NewCapabilitySet([]string{"body"})
		_, _, _, actions, _, err := buildNotifyArgs(n, caps, testPolicy())
		require.NoError(t, err)
		assert.Nil(t, actions)
	})

	t.Run("odd length rejected", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", Actions: []string{"default"}}
		_, _, _, _, _, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		assertRequestError(t, err, "org.freedesktop.DBus.Error.InvalidArgs")
	})

	t.Run("invalid key rejected", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", Actions: []string{"9default", "Open"}}
		_, _, _, _, _, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		assertRequestError(t, err, "org.freedesktop.DBus.Error.InvalidArgs")
	})
}

func TestBuildNotifyArgsHints(t *testing.T) {
	t.Run("urgency forwarded", func(t *testing.T) {
		urgency := uint8(2)
		n := &wire.Notify{Seq: 1, Summary: "s", Urgency: &urgency}
		_, _, _, _, hints, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.Equal(t, dbus.MakeVariant(byte(2)), hints["urgency"])
	})

	t.Run("no urgency means no hint", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s"}
		_, _, _, _, hints, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.NotContains(t, hints, "urgency")
	})

	t.Run("valid category forwarded", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", Category: "email.arrived"}
		_, _, _, _, hints, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.Equal(t, dbus.MakeVariant("email.arrived"), hints["category"])
	})

	t.Run("invalid category rejected", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", Category: "Email"}
		_, _, _, _, _, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		assertRequestError(t, err, "org.freedesktop.DBus.Error.InvalidArgs")
	})

	t.Run("boolean hints gated on capabilities", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", SuppressSound: true, Transient: true, Resident: true}

		_, _, _, _, hints, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.Equal(t, dbus.MakeVariant(true), hints["suppress-sound"])
		assert.Equal(t, dbus.MakeVariant(true), hints["transient"])
		assert.Equal(t, dbus.MakeVariant(true), hints["resident"])

		caps := NewCapabilitySet([]string{"body"})
		_, _, _, _, hints, err = buildNotifyArgs(n, caps, testPolicy())
		require.NoError(t, err)
		assert.Empty(t, hints)
	})
}

func TestBuildNotifyArgsImage(t *testing.T) {
	img := &wire.Image{
		Width:         1,
		Height:        1,
		Rowstride:     4,
		HasAlpha:      true,
		BitsPerSample: 8,
		Channels:      4,
		Data:          []byte{1, 2, 3, 4},
	}

	t.Run("dropped unless enabled", func(t *testing.T) {
		n := &wire.Notify{Seq: 1, Summary: "s", Image: img}
		_, _, _, _, hints, err := buildNotifyArgs(n, fullCaps(), testPolicy())
		require.NoError(t, err)
		assert.NotContains(t, hints, "image-data")
	})

	t.Run("forwarded when enabled", func(t *testing.T) {
		policy := testPolicy()
		policy.ForwardImages = true
		n := &wire.Notify{Seq: 1, Summary: "s", Image: img}
		_, _, _, _, hints, err := buildNotifyArgs(n, fullCaps(), policy)
		require.NoError(t, err)
		v, ok := hints["image-data"]
		require.True(t, ok)
		assert.Equal(t, pixbuf{
			Width:         1,
			Height:        1,
			Rowstride:     4,
			HasAlpha:      true,
			BitsPerSample: 8,
			Channels:      4,
			Data:          []byte{1, 2, 3, 4},
		}, v.Value())
	})

	t.Run("malformed image rejected", func(t *testing.T) {
		policy := testPolicy()
		policy.ForwardImages = true
		bad := *img
		bad.BitsPerSample = 16
		n := &wire.Notify{Seq: 1, Summary: "s", Image: &bad}
		_, _, _, _, _, err := buildNotifyArgs(n, fullCaps(), policy)
		assertRequestError(t, err, "org.freedesktop.DBus.Error.InvalidArgs")
	})
}

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		name     string
		sig      *dbus.Signal
		expected Event
		ok       bool
	}{
		{
			name: "closed",
			sig: &dbus.Signal{
				Name: BusInterface + ".NotificationClosed",
				Body: []interface{}{uint32(7), uint32(2)},
			},
			expected: Event{Kind: EventClosed, HostID: 7, Reason: CloseReasonDismissed},
			ok:       true,
		},
		{
			name: "action",
			sig: &dbus.Signal{
				Name: BusInterface + ".ActionInvoked",
				Body: []interface{}{uint32(7), "default"},
			},
			expected: Event{Kind: EventAction, HostID: 7, Key: "default"},
			ok:       true,
		},
		{
			name: "replied",
			sig: &dbus.Signal{
				Name: BusInterface + ".NotificationReplied",
				Body: []interface{}{uint32(7), "on my way"},
			},
			expected: Event{Kind: EventReplied, HostID: 7, Text: "on my way"},
			ok:       true,
		},
		{
			name: "daemon restart",
			sig: &dbus.Signal{
				Name: "org.freedesktop.DBus.NameOwnerChanged",
				Body: []interface{}{BusName, ":1.5", ":1.9"},
			},
			expected: Event{Kind: EventRestart},
			ok:       true,
		},
		{
			name: "owner change for another name",
			sig: &dbus.Signal{
				Name: "org.freedesktop.DBus.NameOwnerChanged",
				Body: []interface{}{"org.mpris.MediaPlayer2.spotify", "", ":1.9"},
			},
			ok: false,
		},
		{
			name: "malformed body",
			sig: &dbus.Signal{
				Name: BusInterface + ".NotificationClosed",
				Body: []interface{}{uint32(7)},
			},
			ok: false,
		},
		{
			name: "unrelated signal",
			sig: &dbus.Signal{
				Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
				Body: []interface{}{},
			},
			ok: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := decodeSignal(tt.sig)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, ev)
			}
		})
	}
}

func TestDaemonError(t *testing.T) {
	t.Run("named dbus error", func(t *testing.T) {
		err := daemonError(dbus.Error{
			Name: "org.freedesktop.Notifications.MaxNotificationsExceeded",
			Body: []interface{}{"too many"},
		})
		var reqErr *RequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, "org.freedesktop.Notifications.MaxNotificationsExceeded", reqErr.Name)
		assert.Equal(t, "too many", reqErr.Message)
	})

	t.Run("plain error passes through", func(t *testing.T) {
		plain := errors.New("write unix: broken pipe")
		assert.Equal(t, plain, daemonError(plain))
	})
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short"))
	assert.Equal(t, "a b", clip("a\nb"))

	long := clip(string(make([]byte, 100)))
	assert.Equal(t, 43, len([]rune(long)))
}

func assertRequestError(t *testing.T, err error, name string) {
	t.Helper()
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, name, reqErr.Name)
}
