// Package tui provides the terminal dashboard behind "hollon watch".
//
// The dashboard lists tasks that are under verification or waiting for
// review and keeps advancing verification of open change requests on a
// fixed interval. It is read-only apart from a manual refresh:
//
//	m := tui.NewWatchModel(ctx, store, orch, tui.WithInterval(time.Minute))
//	p := tea.NewProgram(m)
//	go func() { p.Send(tui.ConfigReloadedMsg{Interval: 2 * time.Minute}) }()
//	_, err := p.Run()
//
// Users quit with 'q' or Ctrl+C and refresh with 'r'.
package tui
