// Package game implements the Texas Hold'em table state machine.
//
// The main type is Engine, which owns one TableState and moves it through
// the phases of a hand: blinds and hole cards, four betting streets,
// showdown with side pots, and a short result pause before the next hand.
//
// # Basic Usage
//
//	e := game.NewEngine(6, game.DefaultRules())
//	_ = e.Sit(0, "alice", "Alice", 100, 900)
//	_ = e.Sit(1, "bob", "Bob", 100, 900)
//	out := e.StartHand(now)
//	out = e.ApplyAction(now, e.State().CurrentPlayer, game.Call{})
//
// Engine is not safe for concurrent use. Callers serialise access per table
// (see internal/table) and pass the current time into every call so that
// timers can be driven by a mock clock in tests.
//
// # Deterministic Testing
//
// Decks are built from a randutil.Source. Inject a seeded source with
// WithRandSource to replay the same deal:
//
//	e := game.NewEngine(6, rules, game.WithRandSource(randutil.Seeded(42)))
package game
