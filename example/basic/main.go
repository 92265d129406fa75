/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 *
 * Example: Basic Call Usage
 *
 * 这个示例展示了 Call Core 的基本使用方法。
 * 两个参与者通过进程内信令总线完成一次完整的呼叫。
 *
 * 构建命令: go build -o call_example example/basic/main.go
 */
package main

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/maiguangyang/call_core/pkg/rtc"
	"github.com/maiguangyang/call_core/pkg/signaling"
	"github.com/maiguangyang/call_core/pkg/signaling/membus"
)

// pumpVideo feeds dummy frames into a participant's camera track so the
// remote side sees media arriving
func pumpVideo(c *rtc.Controller, stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			primary := c.Media().Primary()
			if primary == nil {
				continue
			}
			track, ok := primary.VideoTrack().(*rtc.StaticTrack)
			if !ok {
				continue
			}
			track.WriteSample(media.Sample{
				Data:     []byte{0x90, 0x00, 0x00, 0x01},
				Duration: 100 * time.Millisecond,
			})
		}
	}
}

// demoSource feeds static VP8/Opus tracks where real hardware would be
type demoSource struct{}

func (s *demoSource) Devices() ([]rtc.Device, error) {
	return []rtc.Device{
		{ID: "cam-front", Label: "Demo Camera", Kind: rtc.DeviceVideoInput},
		{ID: "mic-main", Label: "Demo Microphone", Kind: rtc.DeviceAudioInput},
	}, nil
}

func (s *demoSource) OnDeviceChange(fn func()) (cancel func()) { return func() {} }

func (s *demoSource) OpenCamera(deviceID string) (rtc.Track, error) {
	if deviceID == "" {
		deviceID = "cam-front"
	}
	return rtc.NewStaticVideoTrack(deviceID)
}

func (s *demoSource) OpenMicrophone(deviceID string) (rtc.Track, error) {
	if deviceID == "" {
		deviceID = "mic-main"
	}
	return rtc.NewStaticAudioTrack(deviceID)
}

func (s *demoSource) OpenScreen() (rtc.Track, error) {
	return rtc.NewStaticVideoTrack("screen")
}

func main() {
	fmt.Println("=== Call Core Basic Example ===")
	fmt.Println()

	// 1. 创建进程内信令总线
	fmt.Println("1. Creating signaling bus...")
	bus := membus.New()
	agentChannel := bus.Channel("agent")
	customerChannel := bus.Channel("customer")
	agentChannel.Connect("agent")
	customerChannel.Connect("customer")
	fmt.Println("   ✓ Bus created, both participants connected")

	// 2. 创建两端控制器
	fmt.Println("\n2. Creating controllers...")
	cfg := rtc.DefaultConfig()

	agent, err := rtc.NewController("agent", cfg, agentChannel, &demoSource{})
	if err != nil {
		fmt.Printf("   Error: %v\n", err)
		return
	}
	defer agent.Dispose()

	customer, err := rtc.NewController("customer", cfg, customerChannel, &demoSource{})
	if err != nil {
		fmt.Printf("   Error: %v\n", err)
		return
	}
	defer customer.Dispose()
	fmt.Println("   ✓ Controllers created")

	// 3. 客户端接听来电
	fmt.Println("\n3. Wiring incoming-call handling...")
	customer.OnIncomingCall(func(call rtc.IncomingCall) {
		fmt.Printf("   → Incoming call from %s (ticket %s)\n", call.CallerID, call.ContextID)
		go func() {
			if err := customer.Accept(call.CallerID); err != nil {
				fmt.Printf("   Accept error: %v\n", err)
			}
		}()
	})
	agent.OnCallResponse(func(resp signaling.CallResponse) {
		fmt.Printf("   → %s answered: accepted=%v\n", resp.From, resp.Accepted)
	})

	connected := make(chan string, 2)
	agent.SetOnStreamAdded(func(peerID string, stream *rtc.RemoteStream) {
		connected <- "agent sees " + peerID
	})
	customer.SetOnStreamAdded(func(peerID string, stream *rtc.RemoteStream) {
		connected <- "customer sees " + peerID
	})
	fmt.Println("   ✓ Handlers registered")

	// 4. 坐席发起呼叫
	fmt.Println("\n4. Initiating call...")
	if err := agent.Initiate("customer", "ticket-42"); err != nil {
		fmt.Printf("   Error: %v\n", err)
		return
	}
	fmt.Printf("   ✓ Call initiated, agent state: %s\n", agent.State())

	// 双方持续推送视频帧，远端才会看到媒体
	stop := make(chan struct{})
	defer close(stop)
	go pumpVideo(agent, stop)
	go pumpVideo(customer, stop)

	// 5. 等待双向媒体
	fmt.Println("\n5. Waiting for media...")
	for i := 0; i < 2; i++ {
		select {
		case msg := <-connected:
			fmt.Printf("   ✓ %s\n", msg)
		case <-time.After(10 * time.Second):
			fmt.Println("   ✗ Timed out waiting for remote media")
			return
		}
	}
	fmt.Printf("   Agent state: %s, customer state: %s\n", agent.State(), customer.State())

	// 6. 通话中的操作
	fmt.Println("\n6. In-call operations...")
	if on, err := agent.ToggleVideo(); err == nil {
		fmt.Printf("   ✓ Agent video enabled: %v\n", on)
	}
	if on, err := agent.ToggleVideo(); err == nil {
		fmt.Printf("   ✓ Agent video enabled: %v\n", on)
	}
	if sharing, err := agent.ToggleScreenShare(); err == nil {
		fmt.Printf("   ✓ Agent screen sharing: %v\n", sharing)
	}
	if sharing, err := agent.ToggleScreenShare(); err == nil {
		fmt.Printf("   ✓ Agent screen sharing: %v\n", sharing)
	}

	stats := agent.Stats()
	fmt.Printf("   Signals out: %d, signals in: %d\n", stats.SignalsOut, stats.SignalsIn)

	// 7. 挂断
	fmt.Println("\n7. Ending call...")
	agent.EndCall()
	customer.EndCall()
	fmt.Printf("   ✓ Agent state: %s\n", agent.State())

	fmt.Println("\n=== Example finished ===")
}
