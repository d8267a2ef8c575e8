package model

// Channel selects the delivery path for a reminder.
type Channel string

const (
	ChannelNotification Channel = "notification"
	ChannelSMS          Channel = "sms"
	ChannelBoth         Channel = "both"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelNotification, ChannelSMS, ChannelBoth:
		return true
	}
	return false
}

// Expand returns the single-transport channels that c stands for.
func (c Channel) Expand() []Channel {
	switch c {
	case ChannelBoth:
		return []Channel{ChannelNotification, ChannelSMS}
	case ChannelNotification, ChannelSMS:
		return []Channel{c}
	}
	return nil
}
