// Package anchorpad is a playground for Anchor type definitions: edit a
// snippet that declares Anchor::Types and see the TypeScript it serializes
// to.
//
// # Overview
//
// Snippets run in a sandboxed interpreter. The Ruby engine runs ruby.wasm
// under wazero with no host capabilities beyond a read-only mount of the
// Ruby standard library. The JavaScript engine embeds goja and needs no
// download. Every evaluation gets a fresh, bootstrapped session, so a
// definition from one evaluation is never visible in the next.
//
// # Basic Usage
//
//	p := playground.New(javascript.NewLoader(interp.SerializerConfig{}))
//	defer p.Close()
//
//	p.Initiate()
//	if err := p.Await(ctx); err != nil {
//	    return err // the load failed; p.Status() is StatusError
//	}
//
//	out, err := p.Evaluate(ctx, javascript.Example)
//	if err != nil {
//	    return err // not ready, or closed
//	}
//	if !out.OK() {
//	    fmt.Println("error:", out.Message())
//	}
//	fmt.Println(out.Data)
//
// # Ruby
//
//	l := &loader.Ruby{
//	    Fetcher: loader.NewFetcher(cacheDir),
//	    Source:  src, // loader.DefaultSource("3.4", "2.7.1")
//	}
//	p := playground.New(loader.NewShared(l))
//
// # Editors
//
// DebouncedEvaluate coalesces a burst of edits into one evaluation and
// reports it to the OnOutcome handler. The server package wires this to a
// WebSocket per browser tab; sharelink encodes editor text into links.
//
// See the [playground], [executor], [loader], [server] and [sharelink]
// packages for details.
package anchorpad
