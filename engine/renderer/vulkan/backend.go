package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/hellodog/engine/containers"
	"github.com/spaghettifunk/hellodog/engine/core"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
)

// WindowSurface is the window the renderer presents to.
type WindowSurface interface {
	GetRequiredExtensionNames() []string
	// CreateWindowSurface is handed a vk.Instance and returns the
	// VkSurfaceKHR handle as a pointer.
	CreateWindowSurface(instance any) (uintptr, error)
	FramebufferSize() (width, height uint32)
}

// VulkanRenderer owns the instance, device, swapchain and the two render
// targets, and implements frame.Device on top of them.
type VulkanRenderer struct {
	window  WindowSurface
	context *VulkanContext
	debug   bool

	Offscreen   *OffscreenTarget
	PostProcess *PostProcessTarget

	releases *containers.ReleaseStack
	shutdown bool
}

func New(window WindowSurface, debug bool) *VulkanRenderer {
	width, height := window.FramebufferSize()
	return &VulkanRenderer{
		window:   window,
		context:  NewVulkanContext(width, height),
		debug:    debug,
		releases: containers.NewReleaseStack(),
	}
}

// Initialize builds everything up to the render targets. On failure the
// parts already built are released again.
func (vr *VulkanRenderer) Initialize(appName string) error {
	if err := vr.initialize(appName); err != nil {
		return errors.CombineErrors(err, vr.releases.Release())
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) initialize(appName string) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize vk")
	}

	if err := vr.createInstance(appName); err != nil {
		return err
	}

	// Debugger
	if vr.debug {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.window.CreateWindowSurface(vr.context.Instance)
	if err != nil {
		return errors.Wrap(err, "failed to create platform surface")
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	vr.releases.PushFunc("surface", func() {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	})
	core.LogDebug("Vulkan surface created.")

	// Device creation
	vr.context.Device = &VulkanDevice{
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		TransferQueueIndex: -1,
	}
	vr.releases.PushFunc("device", func() { DeviceDestroy(vr.context) })
	if err := DeviceCreate(vr.context); err != nil {
		return errors.Wrap(err, "failed to create device")
	}

	// Swapchain
	width, height := vr.window.FramebufferSize()
	vr.context.FramebufferWidth = width
	vr.context.FramebufferHeight = height
	swapchain, err := SwapchainCreate(vr.context, width, height)
	if err != nil {
		return errors.Wrap(err, "failed to create swapchain")
	}
	vr.context.Swapchain = swapchain
	vr.releases.PushFunc("swapchain", func() { swapchain.Destroy(vr.context) })

	offscreen, err := NewOffscreenTarget(vr.context, swapchain.Extent, swapchain.ImageFormat.Format)
	if err != nil {
		return err
	}
	vr.Offscreen = offscreen
	vr.releases.PushFunc("offscreen target", offscreen.Destroy)

	post, err := NewPostProcessTarget(vr.context, swapchain)
	if err != nil {
		return err
	}
	vr.PostProcess = post
	vr.releases.PushFunc("post-process target", post.Destroy)
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("hellodog"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	requiredExtensions = append(requiredExtensions, vr.window.GetRequiredExtensionNames()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var requiredValidationLayerNames []string
	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogDebug("Required extensions: %v", requiredExtensions)

		// Validation layers should only be enabled on debug builds.
		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(requiredValidationLayerNames); err != nil {
			return err
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	vr.releases.PushFunc("instance", func() {
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
	})
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		return errors.Wrap(err, "failed to load instance functions")
	}

	core.LogInfo("Vulkan Instance created.")
	return nil
}

func checkValidationLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")

	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}

	available := make(map[string]bool, availableLayerCount)
	for i := range availableLayers {
		availableLayers[i].Deref()
		available[cString(availableLayers[i].LayerName[:])] = true
	}
	for _, name := range required {
		if !available[name] {
			return errors.Newf("required validation layer is missing: %s", name)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (vr *VulkanRenderer) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReportCallback,
	}

	var dbg vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, vr.context.Allocator, &dbg); res != vk.Success {
		return resultError("vkCreateDebugReportCallbackEXT", res)
	}
	vr.context.debugMessenger = dbg
	vr.releases.PushFunc("debug callback", func() {
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	})
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (vr *VulkanRenderer) Context() *VulkanContext {
	return vr.context
}

func (vr *VulkanRenderer) ImageCount() uint32 {
	return vr.context.Swapchain.ImageCount
}

func (vr *VulkanRenderer) Extent() frame.Extent {
	return frame.Extent{
		Width:  vr.context.Swapchain.Extent.Width,
		Height: vr.context.Swapchain.Extent.Height,
	}
}

// Targets exposes the two passes to the recorder.
func (vr *VulkanRenderer) Targets() frame.Targets {
	framebuffers := make([]frame.Framebuffer, len(vr.PostProcess.Framebuffers))
	for i, fb := range vr.PostProcess.Framebuffers {
		framebuffers[i] = fb
	}
	return frame.Targets{
		GeometryPass:        vr.Offscreen.Renderpass,
		GeometryFramebuffer: vr.Offscreen.Framebuffer,
		PostPass:            vr.PostProcess.Renderpass,
		PostFramebuffers:    framebuffers,
		Extent:              vr.Extent(),
	}
}

func (vr *VulkanRenderer) CreateFence(signaled bool) (frame.Fence, error) {
	return NewFence(vr.context, signaled)
}

func (vr *VulkanRenderer) CreateSemaphore() (frame.Semaphore, error) {
	return NewSemaphore(vr.context)
}

func (vr *VulkanRenderer) AllocateCommandBuffer() (frame.CommandBuffer, error) {
	return NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
}

func (vr *VulkanRenderer) AcquireNextImage(signal frame.Semaphore) (uint32, error) {
	semaphore, ok := signal.(*VulkanSemaphore)
	if !ok {
		return 0, errors.Newf("unexpected semaphore %T", signal)
	}
	return vr.context.Swapchain.AcquireNextImageIndex(vr.context, semaphore.Handle)
}

func (vr *VulkanRenderer) Submit(buffer frame.CommandBuffer, wait, signal frame.Semaphore, fence frame.Fence) error {
	commandBuffer, ok := buffer.(*VulkanCommandBuffer)
	if !ok {
		return errors.Newf("unexpected command buffer %T", buffer)
	}
	waitSemaphore, ok := wait.(*VulkanSemaphore)
	if !ok {
		return errors.Newf("unexpected semaphore %T", wait)
	}
	signalSemaphore, ok := signal.(*VulkanSemaphore)
	if !ok {
		return errors.Newf("unexpected semaphore %T", signal)
	}
	inFlight, ok := fence.(*VulkanFence)
	if !ok {
		return errors.Newf("unexpected fence %T", fence)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer.Handle},
		// Signaled when the queue is complete.
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signalSemaphore.Handle},
		// Nothing writes the color attachment before the image is available.
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{waitSemaphore.Handle},
		PWaitDstStageMask:  []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	}

	err := vr.context.Locks.SafeQueueCall(uint32(vr.context.Device.GraphicsQueueIndex), func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(vr.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, inFlight.Handle))
	})
	if err != nil {
		return err
	}
	inFlight.IsSignaled = false
	commandBuffer.UpdateSubmitted()
	return nil
}

func (vr *VulkanRenderer) Present(imageIndex uint32, wait frame.Semaphore) error {
	semaphore, ok := wait.(*VulkanSemaphore)
	if !ok {
		return errors.Newf("unexpected semaphore %T", wait)
	}
	return vr.context.Swapchain.Present(vr.context, semaphore.Handle, imageIndex)
}

func (vr *VulkanRenderer) WaitIdle() error {
	if vr.context.Device == nil || vr.context.Device.LogicalDevice == nil {
		return nil
	}
	return DeviceWaitIdle(vr.context)
}

// Shutdown waits for the device and destroys everything Initialize built,
// in reverse order. Later calls do nothing.
func (vr *VulkanRenderer) Shutdown() error {
	if vr.shutdown {
		return nil
	}
	vr.shutdown = true

	err := vr.WaitIdle()
	return errors.CombineErrors(err, vr.releases.Release())
}

func debugReportCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
