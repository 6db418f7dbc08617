// Package monitoring turns a kernel into an HTTP server so that external
// callers can drive and inspect the simulation concurrently.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/rados/idgen"
	"github.com/sarchlab/rados/kernel"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/report"
	"github.com/sarchlab/rados/resource"
	"github.com/sarchlab/rados/scheduler"
	gopsutil "github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor serves the operations of a kernel over HTTP.
type Monitor struct {
	kernel     Kernel
	portNumber int
	idGen      idgen.IDGenerator

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
	running          *ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{idGen: idgen.NewSequential()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterKernel sets the kernel to serve. The monitor hooks into the
// kernel to follow scheduling cycles.
func (m *Monitor) RegisterKernel(k Kernel) {
	m.kernel = k
	k.AcceptHook(progressHook{m: m})
}

// Router returns the handler of all the routes.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", m.index).Methods(http.MethodGet)
	r.HandleFunc("/api/geometry", m.geometry).Methods(http.MethodGet)
	r.HandleFunc("/api/processes", m.listProcesses).Methods(http.MethodGet)
	r.HandleFunc("/api/process", m.createProcess).Methods(http.MethodPost)
	r.HandleFunc("/api/process/{pid}", m.processDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/field/{json}", m.listFieldValue).Methods(http.MethodGet)
	r.HandleFunc("/api/state", m.state).Methods(http.MethodGet)
	r.HandleFunc("/api/memory", m.memory).Methods(http.MethodGet)
	r.HandleFunc("/api/pages", m.pages).Methods(http.MethodGet)
	r.HandleFunc("/api/owner/{rid}", m.owner).Methods(http.MethodGet)
	r.HandleFunc("/api/allocate", m.allocate).Methods(http.MethodPost)
	r.HandleFunc("/api/free/{pid}", m.free).Methods(http.MethodPost)
	r.HandleFunc("/api/request", m.request).Methods(http.MethodPost)
	r.HandleFunc("/api/waitgraph", m.waitGraph).Methods(http.MethodGet)
	r.HandleFunc("/api/deadlock", m.deadlock).Methods(http.MethodGet)
	r.HandleFunc("/api/schedule", m.schedule).Methods(http.MethodPost)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	return r
}

// StartServer starts the monitor as a web server in the background and
// returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Router())
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	dieOnErr(report.State(w, m.kernel.State()))
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.kernel.State())
}

func (m *Monitor) geometry(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.kernel.Geometry())
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.kernel.ListProcesses())
}

type createProcessReq struct {
	Name string `json:"name"`
}

type createProcessRsp struct {
	PID process.PID `json:"pid"`
}

func (m *Monitor) createProcess(w http.ResponseWriter, r *http.Request) {
	req := createProcessReq{}
	if !decodeOr400(w, r, &req) {
		return
	}

	if req.Name == "" {
		httpError(w, http.StatusBadRequest, "process name must be set")
		return
	}

	pid := m.kernel.CreateProcess(req.Name)

	writeJSON(w, http.StatusCreated, createProcessRsp{PID: pid})
}

func (m *Monitor) processDetails(w http.ResponseWriter, r *http.Request) {
	p, ok := m.findProcessOr404(w, mux.Vars(r)["pid"])
	if !ok {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&p)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	PID       int    `json:"pid,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, ok := m.findProcessOr404(w, strconv.Itoa(req.PID))
	if !ok {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&p)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findProcessOr404(
	w http.ResponseWriter,
	pidStr string,
) (process.Process, bool) {
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid pid "+pidStr)
		return process.Process{}, false
	}

	p, found := m.kernel.Process(process.PID(pid))
	if !found {
		httpError(w, http.StatusNotFound, "Process not found")
		return process.Process{}, false
	}

	return p, true
}

type memoryRsp struct {
	kernel.MemoryView
	Geometry kernel.Geometry `json:"geometry"`
	Valid    bool            `json:"valid"`
}

func (m *Monitor) memory(w http.ResponseWriter, _ *http.Request) {
	v := m.kernel.Memory()

	writeJSON(w, http.StatusOK, memoryRsp{
		MemoryView: v,
		Geometry:   m.kernel.Geometry(),
		Valid:      v.Problem == "",
	})
}

func (m *Monitor) pages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.kernel.MemorySnapshot())
}

type ownerRsp struct {
	Resource resource.ID `json:"rid"`
	Owner    process.PID `json:"owner"`
	Held     bool        `json:"held"`
}

func (m *Monitor) owner(w http.ResponseWriter, r *http.Request) {
	ridStr := mux.Vars(r)["rid"]

	rid, err := strconv.Atoi(ridStr)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid rid "+ridStr)
		return
	}

	owner, held := m.kernel.OwnerOf(resource.ID(rid))

	writeJSON(w, http.StatusOK, ownerRsp{
		Resource: resource.ID(rid),
		Owner:    owner,
		Held:     held,
	})
}

type allocateReq struct {
	PID      process.PID `json:"pid"`
	Size     int         `json:"size"`
	Resource resource.ID `json:"rid"`
}

func (m *Monitor) allocate(w http.ResponseWriter, r *http.Request) {
	req := allocateReq{}
	if !decodeOr400(w, r, &req) {
		return
	}

	result := m.kernel.AllocateMemory(req.PID, req.Size, req.Resource)

	writeJSON(w, http.StatusOK, result)
}

type freeRsp struct {
	Freed []resource.ID `json:"freed"`
}

func (m *Monitor) free(w http.ResponseWriter, r *http.Request) {
	p, ok := m.findProcessOr404(w, mux.Vars(r)["pid"])
	if !ok {
		return
	}

	freed := m.kernel.FreeMemory(p.PID)
	if freed == nil {
		freed = []resource.ID{}
	}

	writeJSON(w, http.StatusOK, freeRsp{Freed: freed})
}

type requestReq struct {
	PID      process.PID `json:"pid"`
	Resource resource.ID `json:"rid"`
	Holder   process.PID `json:"holder"`
}

func (m *Monitor) request(w http.ResponseWriter, r *http.Request) {
	req := requestReq{}
	if !decodeOr400(w, r, &req) {
		return
	}

	err := m.kernel.RequestResource(req.PID, req.Resource, req.Holder)
	if errors.Is(err, kernel.ErrNoSuchProcess) {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	dieOnErr(err)

	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) waitGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.kernel.WaitGraph())
}

type deadlockRsp struct {
	Deadlock bool `json:"deadlock"`
}

func (m *Monitor) deadlock(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(r.URL.Query().Get("pid"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid pid")
		return
	}

	rid, err := strconv.Atoi(r.URL.Query().Get("rid"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid rid")
		return
	}

	found := m.kernel.DetectDeadlock(process.PID(pid), resource.ID(rid))

	writeJSON(w, http.StatusOK, deadlockRsp{Deadlock: found})
}

func (m *Monitor) schedule(w http.ResponseWriter, _ *http.Request) {
	bar, ok := m.startCycleBar()
	if !ok {
		httpError(w, http.StatusConflict, "a scheduling cycle is running")
		return
	}

	done := m.kernel.RunSchedulerCycleAsync()

	go func() {
		m.completeCycle(bar, <-done)
	}()

	writeJSON(w, http.StatusAccepted, bar.snapshot())
}

// startCycleBar must not hold the bar lock while calling the kernel, since
// the progress hook takes the lock with the gate held.
func (m *Monitor) startCycleBar() (*ProgressBar, bool) {
	var ready uint64
	for _, p := range m.kernel.ListProcesses() {
		if p.Active && p.State == process.Ready {
			ready++
		}
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	if m.running != nil {
		return nil, false
	}

	bar := &ProgressBar{
		ID:        m.idGen.Generate(),
		Name:      "scheduler cycle",
		StartTime: time.Now(),
		Total:     ready,
	}

	m.running = bar
	m.progressBars = append(m.progressBars, bar)

	return bar, true
}

func (m *Monitor) runningBar() *ProgressBar {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	return m.running
}

func (m *Monitor) completeCycle(bar *ProgressBar, events []scheduler.RunEvent) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bar.Lock()
	bar.Total = uint64(len(events))
	bar.Finished = uint64(len(events))
	bar.InProgress = 0
	bar.Unlock()

	m.running = nil

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != bar {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, http.StatusOK, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := gopsutil.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memorySize, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		httpError(w, http.StatusConflict, err.Error())
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, http.StatusOK, prof)
}

func decodeOr400(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, err := w.Write([]byte(msg))
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
