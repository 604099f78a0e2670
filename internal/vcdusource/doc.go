// Package vcdusource implements the VCDU source adapters the Router
// reads from: plain TCP, nanomsg-framed TCP (the goesrecv publisher
// protocol), UDP, and flat-file replay. Each adapter reads one fixed
// 892-byte VCDU per Next call and reports end of stream with io.EOF.
package vcdusource
