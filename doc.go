// Package rentledger provides a tenant rent ledger with realtime status sync
// for residential rental portals.
//
// Rentledger is designed as a library, not a service. It provides:
//
//   - A payment ledger keyed by tenant and billing period
//   - A content-free change feed that keeps every open view consistent
//   - Rent status derivation for the current billing period
//   - A simulated payment workflow with a cancellable processing delay
//   - Live view bindings that refetch on change and on identity switch
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/rentledger"
//	    "github.com/xraph/rentledger/feed"
//	    "github.com/xraph/rentledger/store/memory"
//	)
//
//	hub := feed.NewHub()
//	l := rentledger.New(memory.New(), rentledger.WithPublisher(hub))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Views
//
// A binding pairs a query preset with the feed. It fetches once on
// activation and again whenever any payment changes:
//
//	b := binding.New(l, hub, identity.Static("tenant-1"), binding.RentStatus())
//	b.OnUpdate(func(v binding.View) { render(v) })
//	b.Activate(ctx)
//	defer b.Deactivate()
//
// # Payments
//
// The workflow records a completed payment after a processing delay and
// reports the outcome through a notify.Sink:
//
//	w := workflow.New(l, notify.LogSink(logger))
//	w.SelectMethod(payment.MethodUPI)
//	receipt, err := w.Submit(ctx, "tenant-1", profile.MonthlyRent)
//
// All amounts use integer minor units. Money represents amounts in the
// smallest currency unit (paise for INR, cents for USD).
//
// # TypeID
//
// Records use TypeID for globally unique, type-safe identifiers:
//
//	pay_01h2xcejqtf2nbrexx3vqjhp41   // Payment ID
//	txn_01h2xcejqtf2nbrexx3vqjhp41   // Transaction reference
//	fsub_01h455vb4pex5vsknk084sn02q  // Feed subscription
package rentledger
