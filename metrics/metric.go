//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package metrics provides a lot of unet runtime monitoring data,
// such as monitoring receive efficiency and poller wakeups,
// which is a good tool for performance tuning.
package metrics

import (
	"time"

	"go.uber.org/atomic"
	"trpc.group/trpc-go/unet/log"
)

// All metrics definitions.
const (
	// The following constants are UDP metrics.

	UDPRecvfromCalls = iota
	UDPRecvfromFails
	UDPRecvfromPackets
	UDPRecvfromEmpty
	UDPWriteToCalls
	UDPWriteToFails

	// The following constants are channel metrics.

	ChannelsRegistered
	ChannelRegisterFails
	ChannelsDisconnected
	ChannelsClosed

	// The following constants are Epoll metrics.

	EpollWait
	EpollNoWait
	EpollEvents
	PollerJobsRun
	PollerJobFails
	WorkerIdleStops
	TaskAssigned

	// Keep it last.

	Max
)

var (
	metrics [Max]atomic.Uint64
)

// Add metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll get all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	new := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = new[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	m := GetAll()
	showAll(m)
}

func showAll(m [Max]uint64) {
	log.Debug("######### unet metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	showUDPMetrics(m)
	showChannelMetrics(m)
	showEpollMetrics(m)
	log.Debugf("%-59s: %d", "# number of tasks assigned (Submit)", m[TaskAssigned])
}

func showUDPMetrics(m [Max]uint64) {
	log.Debugf("%-59s: %d", "# UDP - number of Recvfrom system calls", m[UDPRecvfromCalls])
	log.Debugf("%-59s: %d", "# UDP - number of failed Recvfrom system calls", m[UDPRecvfromFails])
	recvSucc := m[UDPRecvfromCalls] - m[UDPRecvfromFails]
	if recvSucc > 0 {
		log.Debugf("%-59s: %.2f", "# UDP - Recvfrom efficiency", float64(m[UDPRecvfromPackets])/float64(recvSucc))
	}
	log.Debugf("%-59s: %d", "# UDP - number of empty datagrams received", m[UDPRecvfromEmpty])
	log.Debugf("%-59s: %d", "# UDP - number of WriteTo system calls", m[UDPWriteToCalls])
	log.Debugf("%-59s: %d", "# UDP - number of failed WriteTo system calls", m[UDPWriteToFails])
}

func showChannelMetrics(m [Max]uint64) {
	log.Debugf("%-59s: %d", "# CHANNEL - number of channels registered", m[ChannelsRegistered])
	log.Debugf("%-59s: %d", "# CHANNEL - number of failed registrations", m[ChannelRegisterFails])
	log.Debugf("%-59s: %d", "# CHANNEL - number of channels disconnected", m[ChannelsDisconnected])
	log.Debugf("%-59s: %d", "# CHANNEL - number of channels closed", m[ChannelsClosed])
}

func showEpollMetrics(m [Max]uint64) {
	log.Debugf("%-59s: %d", "# EPOLL - number of epoll_wait returns (tag:b)", m[EpollWait])
	log.Debugf("%-59s: %d", "# EPOLL - number of epoll_wait called with msc=0 (tag:a)", m[EpollNoWait])
	log.Debugf("%-59s: %d", "# EPOLL - number of total events", m[EpollEvents])
	if (m[EpollWait]) > 0 {
		log.Debugf("%-59s: %.2f%%", "# EPOLL - a/b * 100%", float32(m[EpollNoWait])*100/float32(m[EpollWait]))
		log.Debugf("%-59s: %.2f", "# EPOLL - average events number per epoll_wait",
			float32(m[EpollEvents])/float32(m[EpollWait]))
	}
	log.Debugf("%-59s: %d", "# EPOLL - number of poller jobs run", m[PollerJobsRun])
	log.Debugf("%-59s: %d", "# EPOLL - number of failed poller jobs", m[PollerJobFails])
	log.Debugf("%-59s: %d", "# EPOLL - number of workers stopped when idle", m[WorkerIdleStops])
}
