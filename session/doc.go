// Package session runs firmware updates one at a time and reports their
// progress.
//
// A Controller owns the transport for the life of a session. Start loads the
// image and programs it on a background goroutine; a second Start while a
// session runs is rejected with ErrSessionActive. Cancel stops the active
// session at its next send or wait; the session stays active until then, and
// Wait returns once it has stopped.
//
// Events reach every Sink on a dispatcher goroutine separate from the
// transfer. Progress events are dropped when the sink falls behind; the
// Result is never dropped and is always the last event of a session.
//
//	ctrl := session.New(link, session.WithLogger(logger))
//	ctrl.AddSink(session.SinkFuncs{
//	    Progress: func(ev session.ProgressEvent) {
//	        fmt.Printf("%5.1f%% %s %s\n", ev.Percent, ev.Message, ev.Speed)
//	    },
//	})
//	if err := ctrl.Start(firmware.FileSource(path), firmware.Primary); err != nil {
//	    return err
//	}
//	res := ctrl.Wait()
package session
