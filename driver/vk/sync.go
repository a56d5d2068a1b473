// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/vkdemo/driver"
)

// fence implements driver.Fence.
type fence struct {
	d   *device
	fen vk.Fence
}

func (d *device) NewFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fen vk.Fence
	if err := checkResult(vk.CreateFence(d.dev, &info, nil, &fen)); err != nil {
		return nil, err
	}
	return &fence{d: d, fen: fen}, nil
}

func (f *fence) Destroy() {
	if f.d != nil {
		vk.DestroyFence(f.d.dev, f.fen, nil)
		f.d = nil
	}
}

func (f *fence) Wait(timeout time.Duration) error {
	res := vk.WaitForFences(f.d.dev, 1, []vk.Fence{f.fen}, vk.True, timeoutNs(timeout))
	if res == vk.Timeout {
		return driver.ErrTimeout
	}
	return checkResult(res)
}

func (f *fence) Reset() error {
	return checkResult(vk.ResetFences(f.d.dev, 1, []vk.Fence{f.fen}))
}

func (f *fence) Signaled() (bool, error) {
	switch res := vk.GetFenceStatus(f.d.dev, f.fen); res {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, checkResult(res)
	}
}

// semaphore implements driver.Semaphore.
type semaphore struct {
	d   *device
	sem vk.Semaphore
}

func (d *device) NewSemaphore() (driver.Semaphore, error) {
	var sem vk.Semaphore
	err := checkResult(vk.CreateSemaphore(d.dev, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem))
	if err != nil {
		return nil, err
	}
	return &semaphore{d: d, sem: sem}, nil
}

func (s *semaphore) Destroy() {
	if s.d != nil {
		vk.DestroySemaphore(s.d.dev, s.sem, nil)
		s.d = nil
	}
}

// pipelineCache implements driver.PipelineCache.
type pipelineCache struct {
	d     *device
	cache vk.PipelineCache
}

func (d *device) NewPipelineCache() (driver.PipelineCache, error) {
	var cache vk.PipelineCache
	err := checkResult(vk.CreatePipelineCache(d.dev, &vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}, nil, &cache))
	if err != nil {
		return nil, err
	}
	return &pipelineCache{d: d, cache: cache}, nil
}

func (c *pipelineCache) Destroy() {
	if c.d != nil {
		vk.DestroyPipelineCache(c.d.dev, c.cache, nil)
		c.d = nil
	}
}
