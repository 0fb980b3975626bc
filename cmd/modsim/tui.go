package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rwirdemann/modsim"
)

const (
	focusRegisterList = iota
	focusRegisterInput
	focusSlaves
	ratioLeftPanelWidth = 0.6
	logPanelHeight      = 8
)

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder())

var activeStyle = baseStyle.
	BorderForeground(lipgloss.Color("white"))

var passiveStyle = baseStyle.
	BorderForeground(lipgloss.Color("240"))

var helpStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#909090",
	Dark:  "#626262",
}).Padding(0, 1)

type model struct {
	sim              *simulator
	focus            int
	registerTable    table.Model
	slaveTable       table.Model
	currentPoint     modsim.Point
	registerInput    textinput.Model
	inputErr         string
	fullHeight       int
	fullWidth        int
	leftPanelWidth   int
	rightPanelWidth  int
	slavePanelHeight int
	editPanelHeight  int
}

func newModel(sim *simulator) model {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)

	columns := []table.Column{
		{Title: "Slave", Width: 6},
		{Title: "Type", Width: 10},
		{Title: "Address", Width: 8},
		{Title: "Value", Width: 10},
	}
	registerTable := table.New(
		table.WithColumns(columns),
		table.WithRows(pointsToTableRows(sim.slaves[0])),
		table.WithFocused(true),
	)
	registerTable.SetStyles(s)

	slaveColumns := []table.Column{
		{Title: "URL", Width: 22},
		{Title: "Slave", Width: 5},
		{Title: "Type", Width: 12},
		{Title: "State", Width: 7},
	}
	slaveTable := table.New(
		table.WithColumns(slaveColumns),
		table.WithRows(slavesToTableRows(sim.slaves)),
	)
	slaveTable.SetStyles(s)

	return model{
		sim:           sim,
		registerTable: registerTable,
		slaveTable:    slaveTable,
		registerInput: textinput.New(),
		focus:         focusRegisterList,
	}
}

func (m model) selectedSlave() slaveEntry {
	return m.sim.slaves[m.slaveTable.Cursor()]
}

func slavesToTableRows(slaves []slaveEntry) []table.Row {
	var rows []table.Row
	for _, s := range slaves {
		state := "offline"
		if s.server.Online(s.Address) {
			state = "online"
		}
		rows = append(rows, table.Row{s.server.URL(), fmt.Sprintf("%d", s.Address), s.Type, state})
	}
	return rows
}

func pointsToTableRows(s slaveEntry) []table.Row {
	var rows []table.Row
	for _, p := range s.points {
		v, err := s.device.Read(p)
		value := fmt.Sprintf("%d", v)
		if err != nil {
			value = "n/a"
		} else if p.Kind == modsim.KindCoil || p.Kind == modsim.KindDiscrete {
			value = strconv.FormatBool(v != 0)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", s.Address),
			p.Kind,
			fmt.Sprintf("0x%X", p.Address),
			value,
		})
	}
	return rows
}

// parseValue converts user input into the word stored at p.
func parseValue(p modsim.Point, s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if p.Kind == modsim.KindCoil || p.Kind == modsim.KindDiscrete {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second*1, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd { return tickCmd() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmds []tea.Cmd
		cmd  tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.fullHeight = msg.Height
		m.fullWidth = msg.Width

		m.leftPanelWidth = int(float32(m.fullWidth) * ratioLeftPanelWidth)
		m.rightPanelWidth = m.fullWidth - m.leftPanelWidth - 4

		m.slavePanelHeight = (m.fullHeight - logPanelHeight - 5) / 2
		m.editPanelHeight = m.fullHeight - logPanelHeight - 5 - m.slavePanelHeight

		m.registerTable.SetHeight(m.fullHeight - logPanelHeight - 4)
		m.slaveTable.SetHeight(m.slavePanelHeight - 2)

		return m, nil

	case tea.KeyMsg:
		switch m.focus {
		case focusRegisterList:
			m.registerTable, cmd = m.registerTable.Update(msg)
			cmds = append(cmds, cmd)

			switch msg.String() {
			case "tab":
				m.focus = focusSlaves
				m.registerTable.Blur()
				m.slaveTable.Focus()
			case "q", "ctrl+c":
				return m, tea.Quit
			case "enter":
				points := m.selectedSlave().points
				if len(points) == 0 {
					break
				}
				m.currentPoint = points[m.registerTable.Cursor()]
				v, _ := m.selectedSlave().device.Read(m.currentPoint)
				m.registerInput.SetValue(fmt.Sprintf("%d", v))
				m.registerInput.SetCursor(len(m.registerInput.Value()))
				m.registerInput.Focus()
				m.registerTable.Blur()
				m.inputErr = ""
				m.focus = focusRegisterInput
			}

		case focusSlaves:
			oldCursor := m.slaveTable.Cursor()
			m.slaveTable, cmd = m.slaveTable.Update(msg)

			// Reset register cursor if slave has changed
			if oldCursor != m.slaveTable.Cursor() {
				m.registerTable.SetCursor(0)
				m.registerTable.SetRows(pointsToTableRows(m.selectedSlave()))
			}
			cmds = append(cmds, cmd)

			switch msg.String() {
			case "tab":
				m.focus = focusRegisterList
				m.slaveTable.Blur()
				m.registerTable.Focus()
			case "enter":
				m.sim.toggle(m.slaveTable.Cursor())
				m.slaveTable.SetRows(slavesToTableRows(m.sim.slaves))
			case "q", "ctrl+c":
				return m, tea.Quit
			}

		case focusRegisterInput:
			m.registerInput, cmd = m.registerInput.Update(msg)
			cmds = append(cmds, cmd)

			switch msg.String() {
			case "esc":
				m.registerInput.Blur()
				m.registerTable.Focus()
				m.focus = focusRegisterList
			case "enter":
				v, err := parseValue(m.currentPoint, m.registerInput.Value())
				if err != nil {
					m.inputErr = err.Error()
					break
				}
				s := m.selectedSlave()
				if err := s.device.Write(m.currentPoint, v); err != nil {
					m.inputErr = err.Error()
					break
				}
				m.sim.events.Append(fmt.Sprintf("%s %d: set %s to %d", time.Now().Format(time.DateTime), s.Address, m.currentPoint, v))
				m.registerTable.SetRows(pointsToTableRows(s))
				m.registerInput.Blur()
				m.registerTable.Focus()
				m.focus = focusRegisterList
			}
		}
	case tickMsg:
		m.registerTable.SetRows(pointsToTableRows(m.selectedSlave()))
		m.slaveTable.SetRows(slavesToTableRows(m.sim.slaves))
		cmds = append(cmds, tickCmd())
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	panels := lipgloss.JoinVertical(lipgloss.Top, m.renderSlaveTable(), m.renderRegisterForm())
	top := lipgloss.JoinHorizontal(lipgloss.Top, m.renderRegisterTable(), panels)
	return lipgloss.JoinVertical(lipgloss.Left, top, m.renderLog())
}

func (m model) renderRegisterTable() string {
	var style lipgloss.Style
	if m.focus == focusRegisterList {
		style = activeStyle
	} else {
		style = passiveStyle
	}
	style = style.Height(m.fullHeight - logPanelHeight - 4).Width(m.leftPanelWidth)
	return style.Render(m.registerTable.View()) + "\n" + helpStyle.Render("enter - edit value • tab - slaves • q - quit")
}

func (m model) renderRegisterForm() string {
	var style lipgloss.Style
	if m.focus == focusRegisterInput {
		style = activeStyle
	} else {
		style = passiveStyle
	}

	s := ""
	if m.focus == focusRegisterInput {
		s = fmt.Sprintf("\nAddress: 0x%X\n", m.currentPoint.Address)
		s = fmt.Sprintf("%sType   : %s\n\n", s, m.currentPoint.Kind)
		m.registerInput.Prompt = "Value  : "
		s += m.registerInput.View()
		if m.inputErr != "" {
			s += "\n\n" + m.inputErr
		}
	}

	style = style.Border(generateBorder("Edit Register", m.rightPanelWidth))
	return lipgloss.JoinVertical(
		lipgloss.Top,
		style.Padding(0, 1).Height(m.editPanelHeight).Width(m.rightPanelWidth).Render(s),
		helpStyle.Render("enter - save • esc - discard"))
}

func (m model) renderSlaveTable() string {
	var style lipgloss.Style
	if m.focus == focusSlaves {
		style = activeStyle
	} else {
		style = passiveStyle
	}
	return style.Height(m.slavePanelHeight).Width(m.rightPanelWidth).Render(m.slaveTable.View())
}

func (m model) renderLog() string {
	lines := m.sim.events.Tail(logPanelHeight - 2)
	return passiveStyle.Height(logPanelHeight - 2).Width(m.fullWidth - 2).Render(strings.Join(lines, "\n"))
}

func generateBorder(title string, width int) lipgloss.Border {
	if width < 0 {
		return lipgloss.RoundedBorder()
	}
	border := lipgloss.RoundedBorder()
	border.Top = border.Top + border.MiddleRight + " " + title + " " + border.MiddleLeft + strings.Repeat(border.Top, width)
	return border
}
