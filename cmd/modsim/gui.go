//go:build gui

package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// desktop is the fyne front-end: a list of slaves with a connect button each and the
// event log on the right.
type desktop struct {
	sim     *simulator
	list    *widget.List
	logArea *widget.TextGrid
	scroll  *container.Scroll
	content fyne.CanvasObject
}

func newDesktop(sim *simulator) *desktop {
	d := &desktop{sim: sim, logArea: widget.NewTextGrid()}

	d.scroll = container.NewScroll(d.logArea)
	d.scroll.SetMinSize(fyne.NewSize(400, 600))

	d.list = widget.NewList(
		func() int {
			return len(sim.slaves)
		},
		newSlaveRow,
		func(i widget.ListItemID, o fyne.CanvasObject) {
			d.bindSlaveRow(i, o)
		})

	// Main split container with list on left (1/3) and the log on the right (2/3)
	split := container.NewHSplit(d.list, container.NewVBox(d.scroll))
	split.SetOffset(0.33)
	d.content = split
	return d
}

func newSlaveRow() fyne.CanvasObject {
	// Create a template with url, address, type and a button
	url := widget.NewLabel("template")
	address := widget.NewLabel("template")
	deviceType := widget.NewLabel("template")
	button := widget.NewButton("Connect", func() {})
	button.Importance = widget.DangerImportance
	return container.NewHBox(url, address, deviceType, button)
}

func (d *desktop) bindSlaveRow(i widget.ListItemID, o fyne.CanvasObject) {
	cont := o.(*fyne.Container)
	urlLabel := cont.Objects[0].(*widget.Label)
	addressLabel := cont.Objects[1].(*widget.Label)
	typeLabel := cont.Objects[2].(*widget.Label)
	button := cont.Objects[3].(*widget.Button)

	entry := d.sim.slaves[i]
	urlLabel.SetText(entry.server.URL())
	addressLabel.SetText(strconv.Itoa(int(entry.Address)))
	typeLabel.SetText(entry.Type)

	// Update button appearance based on connection state
	updateButton := func() {
		if entry.server.Online(entry.Address) {
			button.SetText("Connected")
			button.Importance = widget.SuccessImportance
		} else {
			button.SetText("Connect")
			button.Importance = widget.DangerImportance
		}
		button.Refresh()
	}
	updateButton()

	button.OnTapped = func() {
		d.sim.toggle(i)
		updateButton()
		d.refreshLog()
	}
}

func (d *desktop) refreshLog() {
	d.logArea.SetText(strings.Join(d.sim.events.Tail(100), "\n"))
	d.scroll.ScrollToBottom()
}

func runDesktop(ctx context.Context, sim *simulator) error {
	myApp := app.New()
	myWindow := myApp.NewWindow("modsim")
	d := newDesktop(sim)

	// servers append to the event log from their own goroutines
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fyne.Do(myApp.Quit)
				return
			case <-ticker.C:
				fyne.Do(func() {
					d.refreshLog()
					d.list.Refresh()
				})
			}
		}
	}()

	myWindow.Resize(fyne.NewSize(900, 600))
	myWindow.SetContent(d.content)
	myWindow.ShowAndRun()
	return nil
}
