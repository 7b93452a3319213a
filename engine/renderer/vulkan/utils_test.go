package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/hellodog/engine/core"
)

func TestResultError(t *testing.T) {
	if err := resultError("vkQueuePresentKHR", vk.Success); err != nil {
		t.Errorf("success returned %v", err)
	}
	if err := resultError("vkQueuePresentKHR", vk.Suboptimal); err != nil {
		t.Errorf("suboptimal returned %v", err)
	}

	err := resultError("vkAcquireNextImageKHR", vk.ErrorOutOfDate)
	if !errors.Is(err, core.ErrSurfaceOutOfDate) {
		t.Errorf("got %v, want an out of date surface", err)
	}
	if !core.IsRecoverable(err) {
		t.Error("an out of date surface should be recoverable")
	}

	err = resultError("vkQueueSubmit", vk.ErrorDeviceLost)
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("got %v, want a lost device", err)
	}
	if core.IsRecoverable(err) {
		t.Error("a lost device should not be recoverable")
	}

	err = resultError("vkCreateBuffer", vk.ErrorOutOfDeviceMemory)
	if err == nil || err.Error() != "vkCreateBuffer failed with VK_ERROR_OUT_OF_DEVICE_MEMORY" {
		t.Errorf("got %v", err)
	}
}

func TestVulkanResultString(t *testing.T) {
	if got := VulkanResultString(vk.ErrorDeviceLost); got != "VK_ERROR_DEVICE_LOST" {
		t.Errorf("got %q", got)
	}
	if got := VulkanResultString(vk.Result(-12345)); got != "VkResult(-12345)" {
		t.Errorf("got %q", got)
	}
}

func TestVulkanSafeString(t *testing.T) {
	tests := map[string]string{
		"":          "\x00",
		"main":      "main\x00",
		"main\x00":  "main\x00",
		"VK_KHR_sw": "VK_KHR_sw\x00",
	}
	for in, want := range tests {
		if got := VulkanSafeString(in); got != want {
			t.Errorf("VulkanSafeString(%q) = %q, want %q", in, got, want)
		}
	}

	list := VulkanSafeStrings([]string{"a", "b\x00"})
	if list[0] != "a\x00" || list[1] != "b\x00" {
		t.Errorf("got %q", list)
	}
}

func TestCString(t *testing.T) {
	var raw [16]byte
	copy(raw[:], "VK_KHR_swap")
	if got := cString(raw[:]); got != "VK_KHR_swap" {
		t.Errorf("got %q", got)
	}
	if got := cString([]byte("full")); got != "full" {
		t.Errorf("got %q", got)
	}
}
