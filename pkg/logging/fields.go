package logging

import "log/slog"

// Domain identifiers

func Channel(id string) slog.Attr {
	return slog.String("channel_id", id)
}

func User(id string) slog.Attr {
	return slog.String("user_id", id)
}

func Conn(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func Call(id string) slog.Attr {
	return slog.String("call_id", id)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Sequence(seq int64) slog.Attr {
	return slog.Int64("sequence", seq)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
