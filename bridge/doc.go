// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge connects typed sample streams to transport links.
//
// A [Publisher] turns register, write, unregister and dispose calls on
// samples of one topic into transport messages and sends them on every
// link it has been given. On the receiving end a [Router] is the
// transport's single Deliverer: it checks each arriving message
// against the access table and hands it to the [Subscriber] registered
// for its topic. The Subscriber keeps one dcps.Source per remote
// writer, named by the link's remote address and the publication the
// peer stamped on the message, and readers connect their Sinks to the
// Subscriber.
//
// The Router also listens to link events. When a link is lost, every
// Subscriber retires the writers that arrived over it. Each writer
// unregisters its instances under its own publication handle, so
// readers see an instance lose its writers only once no link still
// writes it.
//
// Samples travel as CBOR. S must be a type the codec can encode, which
// in practice means a struct with exported fields.
package bridge
